// submodule cmd contains command definitions
package main

import (
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/flx/internal/membership"
)

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

func prettyFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "pretty",
		Usage: "Pretty-print JSON output (default when writing to a terminal)",
	}
}

func typeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "type",
		Aliases: []string{"t"},
		Usage:   "Media type: movie or tv",
		Value:   "movie",
	}
}

func pageFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "page",
		Usage: "Result page",
		Value: 1,
	}
}

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "email",
			Aliases:  []string{"e"},
			Usage:    "Account email",
			Sources:  cli.EnvVars("FLX_EMAIL"),
			Required: true,
		},
		&cli.StringFlag{
			Name:     "password",
			Aliases:  []string{"p"},
			Usage:    "Account password",
			Sources:  cli.EnvVars("FLX_PASSWORD"),
			Required: true,
		},
	}
}

// setupCommand handles setup operations for configuration and the backend database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write the default configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "~/.flx/config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the backend database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// serveCommand runs the self-hosted backend.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the backend (auth and row storage) on sqlite",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides server.port)",
			},
			&cli.StringFlag{
				Name:  "database",
				Usage: "Path to the sqlite database (overrides database.path)",
			},
		},
		Action: r.Serve,
	}
}

// authCommand handles account and session operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage your account and session",
		Commands: []*cli.Command{
			{
				Name:   "signup",
				Usage:  "Create an account",
				Flags:  credentialFlags(),
				Action: r.AuthSignUp,
			},
			{
				Name:   "login",
				Usage:  "Sign in and sync your list and likes",
				Flags:  credentialFlags(),
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Sign out. Your list and likes stay on this device",
				Action: r.AuthLogout,
			},
			{
				Name:   "whoami",
				Usage:  "Show the signed-in account and profile",
				Flags:  []cli.Flag{jsonFlag(), prettyFlag()},
				Action: r.AuthWhoami,
			},
			{
				Name:  "profile",
				Usage: "Update your profile",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Full name",
					},
					&cli.StringFlag{
						Name:  "avatar",
						Usage: "Avatar URL",
					},
				},
				Action: r.AuthProfile,
			},
		},
	}
}

// browseCommand handles catalog browsing
func browseCommand(r *Runner) *cli.Command {
	listing := func(name, usage string, action cli.ActionFunc, flags ...cli.Flag) *cli.Command {
		return &cli.Command{
			Name:   name,
			Usage:  usage,
			Flags:  append([]cli.Flag{jsonFlag(), prettyFlag()}, flags...),
			Action: action,
		}
	}

	return &cli.Command{
		Name:    "browse",
		Aliases: []string{"b"},
		Usage:   "Browse the movie and TV catalog",
		Commands: []*cli.Command{
			{
				Name:      "home",
				Usage:     "Show the rows of a page: home, movies, tv or new",
				Arguments: []cli.Argument{&cli.StringArg{Name: "page", Value: "home"}},
				Flags:     []cli.Flag{jsonFlag(), prettyFlag()},
				Action:    r.BrowseHome,
			},
			listing("trending", "Trending titles", r.BrowseTrending, typeFlag(),
				&cli.StringFlag{Name: "window", Usage: "Time window: day or week", Value: "week"}),
			listing("popular", "Popular titles", r.BrowsePopular, typeFlag(), pageFlag()),
			listing("top-rated", "Top rated titles", r.BrowseTopRated, typeFlag(), pageFlag()),
			listing("upcoming", "Upcoming movies", r.BrowseUpcoming, pageFlag()),
			listing("now-playing", "Movies now in theaters", r.BrowseNowPlaying, pageFlag()),
			listing("airing", "TV shows airing today", r.BrowseAiring, pageFlag()),
			listing("on-the-air", "TV shows currently on the air", r.BrowseOnTheAir, pageFlag()),
			listing("genres", "List movie genres", r.BrowseGenres),
			{
				Name:      "genre",
				Usage:     "Movies of a genre (partial names match)",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Flags:     []cli.Flag{jsonFlag(), prettyFlag(), pageFlag()},
				Action:    r.BrowseGenre,
			},
			{
				Name:      "search",
				Usage:     "Search movies or TV shows",
				Arguments: []cli.Argument{&cli.StringArg{Name: "query"}},
				Flags:     []cli.Flag{jsonFlag(), prettyFlag(), typeFlag(), pageFlag()},
				Action:    r.BrowseSearch,
			},
		},
	}
}

func detailFlags() []cli.Flag {
	return []cli.Flag{
		jsonFlag(),
		prettyFlag(),
		&cli.BoolFlag{
			Name:  "trailer",
			Usage: "Open the trailer in the browser",
		},
	}
}

// movieCommand shows the details of a movie
func movieCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "movie",
		Usage:     "Show movie details",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags:     detailFlags(),
		Action:    r.ShowMovie,
	}
}

// tvCommand shows the details of a TV show
func tvCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "tv",
		Usage:     "Show TV show details",
		Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
		Flags:     detailFlags(),
		Action:    r.ShowTV,
	}
}

// membershipCommand builds the subcommands shared by both synchronized sets.
func membershipCommand(r *Runner, name string, aliases []string, kind membership.Kind) *cli.Command {
	item := func(cmdName, usage string, action cli.ActionFunc) *cli.Command {
		return &cli.Command{
			Name:      cmdName,
			Usage:     usage,
			Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
			Flags:     []cli.Flag{typeFlag()},
			Action:    action,
		}
	}

	return &cli.Command{
		Name:    name,
		Aliases: aliases,
		Usage:   "Manage " + kind.Label,
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show " + kind.Label + ", newest first",
				Flags: []cli.Flag{
					jsonFlag(),
					prettyFlag(),
					&cli.BoolFlag{Name: "titles", Usage: "Look up titles (slower)", Value: true},
				},
				Action: r.membershipShow(kind),
			},
			item("add", "Add a title to "+kind.Label, r.membershipAdd(kind)),
			item("remove", "Remove a title from "+kind.Label, r.membershipRemove(kind)),
			item("toggle", "Add or remove a title", r.membershipToggle(kind)),
			{
				Name:   "sync",
				Usage:  "Replace the local copy with the backend's",
				Action: r.membershipSync(kind),
			},
		},
	}
}

func listCommand(r *Runner) *cli.Command {
	return membershipCommand(r, "list", []string{"my-list", "watchlist"}, membership.Watchlist)
}

func likesCommand(r *Runner) *cli.Command {
	return membershipCommand(r, "likes", []string{"liked"}, membership.Likes)
}

// progressCommand handles continue-watching rows
func progressCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "progress",
		Usage: "Manage continue watching",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show continue watching, most recent first",
				Flags:  []cli.Flag{jsonFlag(), prettyFlag()},
				Action: r.ProgressShow,
			},
			{
				Name:  "set",
				Usage: "Record progress (0-100) for a title",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "percent"},
				},
				Flags:  []cli.Flag{typeFlag()},
				Action: r.ProgressSet,
			},
			{
				Name:      "remove",
				Usage:     "Remove a title from continue watching",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{typeFlag()},
				Action:    r.ProgressRemove,
			},
		},
	}
}

// exportCommand writes lists to files
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export My List and/or Liked to files",
		Arguments: []cli.Argument{&cli.StringArg{Name: "set", Value: "all"}},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Export format: csv, md, txt or json",
				Value:   "csv",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: flx_export_{epoch})",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of concurrent workers",
				Value: 2,
			},
		},
		Action: r.Export,
	}
}

// apiCommand handles direct backend calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the backend, authenticated when signed in",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive TUI",
		Action:  r.TUI,
	}
}
