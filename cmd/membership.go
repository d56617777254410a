package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/flx/internal/formatter"
	"github.com/desertthunder/flx/internal/membership"
	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/shared"
	"github.com/desertthunder/flx/internal/tasks"
)

// itemArgs parses the id argument and --type flag shared by add, remove and toggle.
func itemArgs(cmd *cli.Command) (int, models.MediaType, error) {
	id, err := parseID(cmd)
	if err != nil {
		return 0, "", err
	}
	mediaType, err := parseMediaType(cmd)
	if err != nil {
		return 0, "", err
	}
	return id, mediaType, nil
}

// entries pairs each item with its title when resolve is set, reporting lookups as they finish.
func (r *Runner) entries(ctx context.Context, items []models.MembershipItem, resolve, quiet bool) ([]models.ListEntry, error) {
	if !resolve {
		out := make([]models.ListEntry, len(items))
		for i, item := range items {
			out[i] = models.ListEntry{Item: item}
		}
		return out, nil
	}
	if quiet || len(items) == 0 {
		return r.engine.ResolveTitles(ctx, items, nil)
	}

	progress, wait := r.progress(func(u tasks.ProgressUpdate) {
		if u.Step == 0 {
			r.writePlain("🔍 %s\n", u.Message)
		}
	})
	entries, err := r.engine.ResolveTitles(ctx, items, progress)
	wait()
	return entries, err
}

func (r *Runner) membershipShow(kind membership.Kind) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if err := r.open(ctx); err != nil {
			return err
		}
		set := r.set(kind)
		items := set.Items()

		asJSON := cmd.Bool("json")
		entries, err := r.entries(ctx, items, cmd.Bool("titles"), asJSON)
		if err != nil {
			return err
		}

		if asJSON {
			return r.writeJSON(entries, cmd.Bool("pretty") || r.isTerminal())
		}

		scope := "local only"
		if id := set.Identity(); id != "" {
			scope = "synced"
		}
		r.writePlainHeader(fmt.Sprintf("%s (%d, %s)", kind.Label, len(entries), scope))
		if len(entries) == 0 {
			r.writePlain("Nothing here yet. Add a title with 'flx %s add <id>'.\n", commandName(kind))
			return nil
		}
		return formatter.WriteTable(r.output, entries)
	}
}

func commandName(kind membership.Kind) string {
	if kind == membership.Likes {
		return "likes"
	}
	return "list"
}

func (r *Runner) membershipAdd(kind membership.Kind) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		id, mediaType, err := itemArgs(cmd)
		if err != nil {
			return err
		}
		if err := r.open(ctx); err != nil {
			return err
		}

		err = r.set(kind).Add(ctx, id, mediaType)
		if errors.Is(err, shared.ErrAlreadyMember) {
			r.writePlainln("%s %d is already in %s", mediaType, id, kind.Label)
			return nil
		}
		if err != nil {
			return hint(err)
		}

		r.logger.Debug("added", "kind", kind, "media_id", id, "media_type", mediaType)
		r.writePlainln("✓ Added %s %d to %s", mediaType, id, kind.Label)
		return nil
	}
}

func (r *Runner) membershipRemove(kind membership.Kind) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		id, mediaType, err := itemArgs(cmd)
		if err != nil {
			return err
		}
		if err := r.open(ctx); err != nil {
			return err
		}

		err = r.set(kind).Remove(ctx, id, mediaType)
		if errors.Is(err, shared.ErrNotMember) {
			r.writePlainln("%s %d is not in %s", mediaType, id, kind.Label)
			return nil
		}
		if err != nil {
			return hint(err)
		}

		r.logger.Debug("removed", "kind", kind, "media_id", id, "media_type", mediaType)
		r.writePlainln("✓ Removed %s %d from %s", mediaType, id, kind.Label)
		return nil
	}
}

func (r *Runner) membershipToggle(kind membership.Kind) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		id, mediaType, err := itemArgs(cmd)
		if err != nil {
			return err
		}
		if err := r.open(ctx); err != nil {
			return err
		}

		member, err := r.set(kind).Toggle(ctx, id, mediaType)
		if err != nil {
			return hint(err)
		}
		if member {
			r.writePlainln("✓ Added %s %d to %s", mediaType, id, kind.Label)
		} else {
			r.writePlainln("✓ Removed %s %d from %s", mediaType, id, kind.Label)
		}
		return nil
	}
}

func (r *Runner) membershipSync(kind membership.Kind) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if _, err := r.requireSession(ctx); err != nil {
			return err
		}

		set := r.set(kind)
		if err := set.Resync(ctx); err != nil {
			return hint(err)
		}
		r.writePlainln("✓ %s synced (%d items)", kind.Label, len(set.Items()))
		return nil
	}
}
