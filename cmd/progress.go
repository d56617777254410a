package main

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/flx/internal/shared"
)

// ProgressShow prints the continue-watching row.
func (r *Runner) ProgressShow(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.requireSession(ctx); err != nil {
		return err
	}
	if err := r.tracker.Refresh(ctx); err != nil {
		return hint(err)
	}
	items := r.tracker.Items()

	if cmd.Bool("json") {
		return r.writeJSON(items, cmd.Bool("pretty") || r.isTerminal())
	}

	r.writePlainHeader(fmt.Sprintf("Continue Watching (%d)", len(items)))
	if len(items) == 0 {
		r.writePlain("Nothing in progress.\n")
		return nil
	}
	for _, p := range items {
		r.writePlain("%-6s %-8d %5.1f%%  %s\n", p.MediaType, p.MediaID, p.Progress, p.LastWatched.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

// ProgressSet records how far the user got into a title. Values outside 0-100 are clamped.
func (r *Runner) ProgressSet(ctx context.Context, cmd *cli.Command) error {
	id, mediaType, err := itemArgs(cmd)
	if err != nil {
		return err
	}

	raw := strings.TrimSuffix(strings.TrimSpace(cmd.StringArg("percent")), "%")
	if raw == "" {
		return fmt.Errorf("%w: percent", shared.ErrMissingArgument)
	}
	pct, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(pct) {
		return fmt.Errorf("%w: percent must be a number, got %q", shared.ErrInvalidArgument, raw)
	}

	if _, err := r.requireSession(ctx); err != nil {
		return err
	}
	if err := r.tracker.Update(ctx, id, mediaType, pct); err != nil {
		return hint(err)
	}

	r.writePlainln("✓ Progress for %s %d set to %.0f%%", mediaType, id, r.tracker.Progress(id, mediaType))
	return nil
}

// ProgressRemove drops a title from continue watching.
func (r *Runner) ProgressRemove(ctx context.Context, cmd *cli.Command) error {
	id, mediaType, err := itemArgs(cmd)
	if err != nil {
		return err
	}
	if _, err := r.requireSession(ctx); err != nil {
		return err
	}
	if err := r.tracker.Remove(ctx, id, mediaType); err != nil {
		return hint(err)
	}

	r.writePlainln("✓ Removed %s %d from Continue Watching", mediaType, id)
	return nil
}
