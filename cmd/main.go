package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/flx/internal/shared"
)

// configCandidates are tried in order when FLX_CONFIG is unset.
var configCandidates = []string{"config.toml", "~/.flx/config.toml"}

func main() {
	logger := shared.NewLogger(nil)
	configPath, config := loadConfig(logger)
	shared.SetLogLevel(logger, shared.ParseLogLevel(config.Logging.Level))

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp(runner).Run(ctx, os.Args)
	stop()

	if cerr := runner.Close(); cerr != nil {
		logger.Warn("failed to close local store", "error", cerr)
	}

	if err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}

// loadConfig returns the first config file found, or the defaults when there is none.
func loadConfig(logger *log.Logger) (string, *shared.Config) {
	candidates := configCandidates
	if p := os.Getenv("FLX_CONFIG"); p != "" {
		candidates = []string{p}
	}

	for _, candidate := range candidates {
		path := shared.ExpandPath(candidate)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		config, err := shared.LoadConfig(path)
		if err != nil {
			logger.Warn("failed to load config, using defaults", "path", path, "error", err)
			return path, shared.DefaultConfig()
		}
		return path, config
	}
	return "", shared.DefaultConfig()
}

func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "flx",
		Usage:   "Browse movies & TV and keep your list and likes in sync",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.before,
		Commands: r.register(),
	}
}

func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	return ctx, nil
}
