package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/flx/internal/formatter"
	"github.com/desertthunder/flx/internal/membership"
	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/shared"
	"github.com/desertthunder/flx/internal/tasks"
)

// exportKinds resolves the set argument: "all" or one set name.
func exportKinds(name string) ([]membership.Kind, error) {
	if strings.EqualFold(strings.TrimSpace(name), "all") || name == "" {
		return membership.Kinds(), nil
	}
	kind, err := membership.KindByName(name)
	if err != nil {
		return nil, err
	}
	return []membership.Kind{kind}, nil
}

// Export writes My List and/or Liked with resolved titles to files in the chosen format.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	kinds, err := exportKinds(cmd.StringArg("set"))
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: --format: %v", shared.ErrInvalidFlag, err)
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	exports := make([]*models.ListExport, 0, len(kinds))
	for _, kind := range kinds {
		items := r.set(kind).Items()
		r.writePlain("📋 %s: %d items\n", kind.Label, len(items))

		entries, err := r.entries(ctx, items, true, true)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", kind.Label, err)
		}
		exports = append(exports, &models.ListExport{
			Kind:       kind.Table,
			Name:       kind.Label,
			ExportedAt: time.Now().UTC(),
			Entries:    entries,
		})
	}

	opts := tasks.ExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: int(cmd.Int("workers")),
		CoverURL:   r.tmdb.BackdropURL,
	}

	progress, wait := r.progress(func(u tasks.ProgressUpdate) {
		r.writePlain("💾 %s\n", u.Message)
	})
	result, err := r.engine.ExportLists(ctx, progress, exports, opts)
	wait()
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainln("═══════════════════════════════════════")
	r.writePlainln("Export Summary")
	r.writePlainln("═══════════════════════════════════════")
	r.writePlainln("Format:     %s", result.Format)
	r.writePlainln("Directory:  %s", result.OutputDirectory)
	r.writePlainln("Successful: %d/%d", result.Successful, result.Total)
	for _, res := range result.Results {
		if res.Success {
			r.writePlain("  ✓ %s (%d) → %s\n", res.Name, res.Count, strings.Join(res.Files, ", "))
		} else {
			r.writePlain("  ✗ %s: %v\n", res.Name, res.Error)
		}
	}
	if result.ManifestPath != "" {
		r.writePlainln("Manifest:   %s", result.ManifestPath)
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d exports failed", result.Failed, result.Total)
	}
	return nil
}
