package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/notify"
	"github.com/desertthunder/flx/internal/services"
	"github.com/desertthunder/flx/internal/shared"
)

const profilesTable = "profiles"

// AuthSignUp creates an account. It does not sign in.
func (r *Runner) AuthSignUp(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	user, err := r.auth.SignUp(ctx, cmd.String("email"), cmd.String("password"))
	if err != nil {
		return fmt.Errorf("sign up failed: %w", err)
	}

	r.logger.Info("account created", "user_id", user.ID)
	r.writePlain("✓ Account created for %s\n", user.Email)
	r.writePlain("Run 'flx auth login' to sign in.\n")
	return nil
}

// AuthLogin signs in. Signing in merges the local list and likes with the backend's copy.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	sess, err := r.auth.SignIn(ctx, cmd.String("email"), cmd.String("password"))
	if err != nil {
		return fmt.Errorf("sign in failed: %w", err)
	}

	r.writePlain("✓ Signed in as %s\n", sess.Email)
	r.writePlain("%s: %d titles\n", r.watchlist.Kind().Label, len(r.watchlist.Items()))
	r.writePlain("%s: %d titles\n", r.likes.Kind().Label, len(r.likes.Items()))
	return nil
}

// AuthLogout signs out. The sets fall back to their local copies.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	if r.auth.Session() == nil {
		return r.writePlain("Not signed in.\n")
	}

	if err := r.auth.SignOut(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Signed out\n")
}

func (r *Runner) fetchProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var rows []models.Profile
	q := services.Query{}.Where(services.Eq("id", userID))
	if err := r.backend.Select(ctx, profilesTable, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("profile %s: %w", userID, shared.ErrNotFound)
	}
	return &rows[0], nil
}

// AuthWhoami shows the signed-in user and their profile.
func (r *Runner) AuthWhoami(ctx context.Context, cmd *cli.Command) error {
	userID, err := r.requireSession(ctx)
	if err != nil {
		return err
	}

	user, err := r.auth.CurrentUser(ctx)
	if err != nil {
		return hint(err)
	}

	profile, err := r.fetchProfile(ctx, userID)
	if err != nil {
		return hint(err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(profile, cmd.Bool("pretty") || r.isTerminal())
	}

	r.writePlainHeader(profile.DisplayName())
	r.writePlain("ID:     %s\n", user.ID)
	r.writePlain("Email:  %s\n", user.Email)
	if profile.AvatarURL != nil && *profile.AvatarURL != "" {
		r.writePlain("Avatar: %s\n", *profile.AvatarURL)
	}
	r.writePlain("Since:  %s\n", profile.CreatedAt.Format("2006-01-02"))
	return nil
}

// AuthProfile updates the signed-in user's profile and reports the outcome as a notification.
func (r *Runner) AuthProfile(ctx context.Context, cmd *cli.Command) error {
	userID, err := r.requireSession(ctx)
	if err != nil {
		return err
	}

	var update models.ProfileUpdate
	if cmd.IsSet("name") {
		name := cmd.String("name")
		update.FullName = &name
	}
	if cmd.IsSet("avatar") {
		avatar := cmd.String("avatar")
		update.AvatarURL = &avatar
	}
	if update.FullName == nil && update.AvatarURL == nil {
		return fmt.Errorf("%w: --name or --avatar", shared.ErrMissingArgument)
	}

	var rows []models.Profile
	q := services.Query{}.Where(services.Eq("id", userID))
	if err := r.backend.Update(ctx, profilesTable, q, update, &rows); err != nil {
		r.logger.Error("failed to update profile", "user_id", userID, "error", err)
		r.bus.Publish("Failed to update profile", notify.Error)
		return hint(err)
	}

	r.bus.Publish("Profile updated successfully", notify.Success)
	if len(rows) > 0 {
		r.writePlain("Name: %s\n", rows[0].DisplayName())
	}
	return nil
}
