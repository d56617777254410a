package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/flx/internal/formatter"
	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/shared"
	"github.com/desertthunder/flx/internal/tasks"
)

func parseID(cmd *cli.Command) (int, error) {
	raw := strings.TrimSpace(cmd.StringArg("id"))
	if raw == "" {
		return 0, fmt.Errorf("%w: id", shared.ErrMissingArgument)
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive number, got %q", shared.ErrInvalidArgument, raw)
	}
	return id, nil
}

func parseMediaType(cmd *cli.Command) (models.MediaType, error) {
	t, err := models.ParseMediaType(cmd.String("type"))
	if err != nil {
		return "", fmt.Errorf("%w: --type: %v", shared.ErrInvalidFlag, err)
	}
	return t, nil
}

func pageNumber(cmd *cli.Command) int {
	return max(1, int(cmd.Int("page")))
}

// progress starts printing updates and returns the channel to send them on and a function that
// closes it once the operation is done and waits for the printer to drain.
func (r *Runner) progress(render func(tasks.ProgressUpdate)) (chan<- tasks.ProgressUpdate, func()) {
	ch := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range ch {
			render(update)
		}
	}()
	return ch, func() {
		close(ch)
		<-done
	}
}

func (r *Runner) writeTitles(cmd *cli.Command, titles []models.Title) error {
	if cmd.Bool("json") {
		return r.writeJSON(titles, cmd.Bool("pretty") || r.isTerminal())
	}
	if len(titles) == 0 {
		return r.writePlain("No titles found.\n")
	}
	return formatter.WriteTitleTable(r.output, titles)
}

// BrowseHome prints every row of a page.
func (r *Runner) BrowseHome(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	name := cmd.StringArg("page")

	if cmd.Bool("json") {
		rows, err := r.engine.Rows(ctx, name, nil)
		if err != nil {
			return err
		}
		out := make(map[string][]models.Title, len(rows))
		for _, row := range rows {
			out[row.Name] = row.Titles
		}
		return r.writeJSON(out, cmd.Bool("pretty") || r.isTerminal())
	}

	progress, wait := r.progress(func(u tasks.ProgressUpdate) {
		if u.Step == 0 {
			r.writePlain("📥 %s\n", u.Message)
		}
	})
	rows, err := r.engine.Rows(ctx, name, progress)
	wait()
	if err != nil {
		return err
	}

	for _, row := range rows {
		r.writePlainln("%s", row.Name)
		if row.Err != nil {
			r.writePlain("  ✗ %v\n", row.Err)
			continue
		}
		for i, t := range row.Titles {
			if i == 10 {
				r.writePlain("  … %d more\n", len(row.Titles)-10)
				break
			}
			r.writePlain("  %-8s %-7d %s", t.MediaType, t.ID, t.Name)
			if y := t.Year(); y != "" {
				r.writePlain(" (%s)", y)
			}
			r.writePlain("\n")
		}
	}
	return nil
}

// BrowseTrending prints trending movies or shows for a day or week window.
func (r *Runner) BrowseTrending(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	mediaType, err := parseMediaType(cmd)
	if err != nil {
		return err
	}
	window := cmd.String("window")
	if window != "day" && window != "week" {
		return fmt.Errorf("%w: --window must be day or week", shared.ErrInvalidFlag)
	}

	var titles []models.Title
	if mediaType == models.MediaTV {
		shows, err := r.tmdb.TrendingTV(ctx, window)
		if err != nil {
			return err
		}
		titles = models.ShowsAsTitles(shows)
	} else {
		movies, err := r.tmdb.TrendingMovies(ctx, window)
		if err != nil {
			return err
		}
		titles = models.MoviesAsTitles(movies)
	}
	return r.writeTitles(cmd, titles)
}

// byType runs the movie or show variant of a listing depending on --type. The fetchers are
// method values, so the caller opens the client stack first.
func (r *Runner) byType(
	ctx context.Context,
	cmd *cli.Command,
	movies func(context.Context, int) ([]models.Movie, error),
	shows func(context.Context, int) ([]models.TVShow, error),
) error {
	mediaType, err := parseMediaType(cmd)
	if err != nil {
		return err
	}

	if mediaType == models.MediaTV {
		return r.listShows(ctx, cmd, shows)
	}
	return r.listMovies(ctx, cmd, movies)
}

func (r *Runner) listMovies(ctx context.Context, cmd *cli.Command, fetch func(context.Context, int) ([]models.Movie, error)) error {
	movies, err := fetch(ctx, pageNumber(cmd))
	if err != nil {
		return err
	}
	return r.writeTitles(cmd, models.MoviesAsTitles(movies))
}

func (r *Runner) listShows(ctx context.Context, cmd *cli.Command, fetch func(context.Context, int) ([]models.TVShow, error)) error {
	shows, err := fetch(ctx, pageNumber(cmd))
	if err != nil {
		return err
	}
	return r.writeTitles(cmd, models.ShowsAsTitles(shows))
}

// BrowsePopular prints popular movies or shows.
func (r *Runner) BrowsePopular(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	return r.byType(ctx, cmd, r.tmdb.PopularMovies, r.tmdb.PopularTV)
}

// BrowseTopRated prints top rated movies or shows.
func (r *Runner) BrowseTopRated(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	return r.byType(ctx, cmd, r.tmdb.TopRatedMovies, r.tmdb.TopRatedTV)
}

func (r *Runner) BrowseUpcoming(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	return r.listMovies(ctx, cmd, r.tmdb.UpcomingMovies)
}

func (r *Runner) BrowseNowPlaying(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	return r.listMovies(ctx, cmd, r.tmdb.NowPlayingMovies)
}

func (r *Runner) BrowseAiring(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	return r.listShows(ctx, cmd, r.tmdb.AiringTodayTV)
}

func (r *Runner) BrowseOnTheAir(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	return r.listShows(ctx, cmd, r.tmdb.OnTheAirTV)
}

// BrowseGenres prints the movie genre list.
func (r *Runner) BrowseGenres(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	genres, err := r.tmdb.MovieGenres(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(genres, cmd.Bool("pretty") || r.isTerminal())
	}
	for _, g := range genres {
		r.writePlain("%-6d %s\n", g.ID, g.Name)
	}
	return nil
}

// BrowseGenre prints movies of the genre best matching the given name.
func (r *Runner) BrowseGenre(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	genre, err := r.engine.FindGenre(ctx, cmd.StringArg("name"))
	if err != nil {
		return err
	}
	r.logger.Debug("resolved genre", "query", cmd.StringArg("name"), "genre", genre.Name)

	movies, err := r.tmdb.MoviesByGenre(ctx, genre.ID, pageNumber(cmd))
	if err != nil {
		return err
	}
	if !cmd.Bool("json") {
		r.writePlain("Genre: %s\n\n", genre.Name)
	}
	return r.writeTitles(cmd, models.MoviesAsTitles(movies))
}

// BrowseSearch searches movies or shows by title.
func (r *Runner) BrowseSearch(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	search := func(fn func(context.Context, string, int) ([]models.Movie, error)) func(context.Context, int) ([]models.Movie, error) {
		return func(ctx context.Context, p int) ([]models.Movie, error) { return fn(ctx, query, p) }
	}
	searchShows := func(fn func(context.Context, string, int) ([]models.TVShow, error)) func(context.Context, int) ([]models.TVShow, error) {
		return func(ctx context.Context, p int) ([]models.TVShow, error) { return fn(ctx, query, p) }
	}

	if err := r.open(ctx); err != nil {
		return err
	}
	return r.byType(ctx, cmd, search(r.tmdb.SearchMovies), searchShows(r.tmdb.SearchTV))
}

// ShowMovie prints the details of a movie.
func (r *Runner) ShowMovie(ctx context.Context, cmd *cli.Command) error {
	return r.showDetails(ctx, cmd, models.MediaMovie)
}

// ShowTV prints the details of a TV show.
func (r *Runner) ShowTV(ctx context.Context, cmd *cli.Command) error {
	return r.showDetails(ctx, cmd, models.MediaTV)
}

func (r *Runner) showDetails(ctx context.Context, cmd *cli.Command, mediaType models.MediaType) error {
	id, err := parseID(cmd)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	d, err := r.engine.Details(ctx, models.Key{MediaID: id, MediaType: mediaType}, nil)
	if err != nil {
		return err
	}

	if cmd.Bool("trailer") {
		if d.TrailerURL == "" {
			return fmt.Errorf("no trailer for %s: %w", d.Title.Name, shared.ErrNotFound)
		}
		r.logger.Info("opening trailer", "url", d.TrailerURL)
		if err := shared.OpenBrowser(d.TrailerURL); err != nil {
			return err
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(d, cmd.Bool("pretty") || r.isTerminal())
	}

	heading := d.Title.Name
	if y := d.Title.Year(); y != "" {
		heading = fmt.Sprintf("%s (%s)", heading, y)
	}
	r.writePlainHeader(heading)
	if d.Tagline != "" {
		r.writePlain("%s\n\n", d.Tagline)
	}
	if d.Runtime > 0 {
		r.writePlain("Runtime:  %d min\n", d.Runtime)
	}
	if d.Seasons > 0 {
		r.writePlain("Seasons:  %d (%d episodes)\n", d.Seasons, d.Episodes)
	}
	if d.Title.VoteAverage > 0 {
		r.writePlain("Rating:   %.1f\n", d.Title.VoteAverage)
	}
	if len(d.Genres) > 0 {
		r.writePlain("Genres:   %s\n", strings.Join(d.Genres, ", "))
	}
	if len(d.Cast) > 0 {
		r.writePlain("Cast:     %s\n", strings.Join(d.Cast, ", "))
	}
	if d.TrailerURL != "" {
		r.writePlain("Trailer:  %s\n", d.TrailerURL)
	}

	var in []string
	if r.watchlist.IsMember(id, mediaType) {
		in = append(in, r.watchlist.Kind().Label)
	}
	if r.likes.IsMember(id, mediaType) {
		in = append(in, r.likes.Kind().Label)
	}
	if len(in) > 0 {
		r.writePlain("In:       %s\n", strings.Join(in, ", "))
	}
	if pct := r.tracker.Progress(id, mediaType); pct > 0 {
		r.writePlain("Watched:  %.0f%%\n", pct)
	}

	if d.Title.Overview != "" {
		r.writePlainln("%s", d.Title.Overview)
	}
	return nil
}
