package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/flx/internal/shared"
)

// CacheInfo prints the location of the local store and the keys it holds.
func (r *Runner) CacheInfo(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	keys, err := r.store.Keys()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}

	path := r.store.Path()
	if path == "" {
		path = "(memory only)"
	}
	r.writePlainln("Local store: %s", path)
	r.writePlainln("  TTL: %s", r.config.TMDB.CacheTTL.Duration)
	for _, k := range keys {
		r.writePlain("  %s\n", k)
	}
	return nil
}

// CachePurge drops catalog responses older than --older-than, defaulting to the configured TTL.
//
// Membership and session keys are never purged.
func (r *Runner) CachePurge(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	age := r.config.TMDB.CacheTTL.Duration
	if cmd.IsSet("older-than") {
		age = cmd.Duration("older-than")
	}
	if age < 0 {
		return fmt.Errorf("%w: --older-than must not be negative", shared.ErrInvalidFlag)
	}

	r.logger.Debug("purging catalog cache", "older_than", age)

	n, err := r.store.Catalog().Purge(time.Now().Add(-age))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}

	r.writePlainln("✓ Purged %d cached responses", n)
	return nil
}

// cacheCommand handles the local catalog cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and purge the local cache",
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show the local store and its keys",
				Action: r.CacheInfo,
			},
			{
				Name:  "purge",
				Usage: "Drop stale catalog responses",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Age of entries to drop (default: tmdb.cache_ttl)",
					},
				},
				Action: r.CachePurge,
			},
		},
	}
}
