package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func mustRegister(t *testing.T, db *sql.DB, email string) *models.User {
	t.Helper()
	user, err := NewUserRepository(db).Register(context.Background(), email, "$2a$10$hash")
	if err != nil {
		t.Fatalf("failed to register %s: %v", email, err)
	}
	return user
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Register", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)

		user, err := repo.Register(ctx, "test@example.com", "hash")
		if err != nil {
			t.Fatalf("failed to register user: %v", err)
		}
		if user.ID == "" {
			t.Error("user ID should be set after registration")
		}

		profile, err := NewProfileRepository(db).Get(ctx, user.ID)
		if err != nil {
			t.Fatalf("profile should be created with the user: %v", err)
		}
		if profile.Email != "test@example.com" {
			t.Errorf("expected profile email test@example.com, got %s", profile.Email)
		}
	})

	t.Run("Register Duplicate Email", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)
		mustRegister(t, db, "test@example.com")

		_, err := repo.Register(ctx, "TEST@example.com", "hash")
		if !errors.Is(err, shared.ErrConflict) {
			t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
		}
	})

	t.Run("Register Invalid Email", func(t *testing.T) {
		db := setupTestDB(t)
		if _, err := NewUserRepository(db).Register(ctx, "not-an-email", "hash"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Get And GetByEmail", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)
		user := mustRegister(t, db, "test@example.com")

		got, err := repo.Get(ctx, user.ID)
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if got.PasswordHash != "$2a$10$hash" {
			t.Errorf("expected password hash to round trip, got %s", got.PasswordHash)
		}

		byEmail, err := repo.GetByEmail(ctx, "Test@Example.com")
		if err != nil {
			t.Fatalf("email lookup should ignore case: %v", err)
		}
		if byEmail.ID != user.ID {
			t.Errorf("expected ID %s, got %s", user.ID, byEmail.ID)
		}

		if _, err := repo.Get(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete Cascades", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUserRepository(db)
		user := mustRegister(t, db, "test@example.com")

		list, _ := NewMembershipRepository(db, "my_list")
		if _, err := list.Insert(ctx, user.ID, 550, models.MediaMovie); err != nil {
			t.Fatalf("insert failed: %v", err)
		}

		if err := repo.Delete(ctx, user.ID); err != nil {
			t.Fatalf("failed to delete user: %v", err)
		}
		if err := repo.Delete(ctx, user.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM my_list").Scan(&count); err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 0 {
			t.Errorf("expected memberships to cascade, %d left", count)
		}
	})
}

func TestProfileRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	user := mustRegister(t, db, "test@example.com")
	repo := NewProfileRepository(db)

	t.Run("Update Sets Fields", func(t *testing.T) {
		name := "Test User"
		p, err := repo.Update(ctx, user.ID, models.ProfileUpdate{FullName: &name})
		if err != nil {
			t.Fatalf("failed to update profile: %v", err)
		}
		if p.DisplayName() != "Test User" {
			t.Errorf("expected display name Test User, got %s", p.DisplayName())
		}
		if p.AvatarURL != nil {
			t.Error("avatar should stay unset")
		}
	})

	t.Run("Nil Fields Are Unchanged", func(t *testing.T) {
		avatar := "https://example.com/a.png"
		p, err := repo.Update(ctx, user.ID, models.ProfileUpdate{AvatarURL: &avatar})
		if err != nil {
			t.Fatalf("failed to update profile: %v", err)
		}
		if p.FullName == nil || *p.FullName != "Test User" {
			t.Errorf("full name should be kept, got %v", p.FullName)
		}
		if p.AvatarURL == nil || *p.AvatarURL != avatar {
			t.Errorf("expected avatar %s, got %v", avatar, p.AvatarURL)
		}
	})

	t.Run("Missing Profile", func(t *testing.T) {
		if _, err := repo.Update(ctx, "missing", models.ProfileUpdate{}); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestTokenRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	user := mustRegister(t, db, "test@example.com")
	repo := NewTokenRepository(db)

	t.Run("Consume Is Single Use", func(t *testing.T) {
		tok, err := repo.Create(ctx, user.ID, time.Hour)
		if err != nil {
			t.Fatalf("failed to create token: %v", err)
		}
		if len(tok.Token) != 64 {
			t.Errorf("expected 64 character token, got %d", len(tok.Token))
		}

		consumed, err := repo.Consume(ctx, tok.Token)
		if err != nil {
			t.Fatalf("failed to consume token: %v", err)
		}
		if consumed.UserID != user.ID || consumed.RevokedAt == nil {
			t.Errorf("unexpected consumed token %+v", consumed)
		}

		if _, err := repo.Consume(ctx, tok.Token); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected reuse to fail with ErrNotFound, got %v", err)
		}
	})

	t.Run("Expired Tokens Are Rejected", func(t *testing.T) {
		tok, err := repo.Create(ctx, user.ID, -time.Minute)
		if err != nil {
			t.Fatalf("failed to create token: %v", err)
		}
		if _, err := repo.Consume(ctx, tok.Token); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound for expired token, got %v", err)
		}

		purged, err := repo.PurgeExpired(ctx, time.Now())
		if err != nil {
			t.Fatalf("purge failed: %v", err)
		}
		if purged < 1 {
			t.Errorf("expected expired token to be purged, got %d", purged)
		}
	})

	t.Run("RevokeAll", func(t *testing.T) {
		a, _ := repo.Create(ctx, user.ID, time.Hour)
		b, _ := repo.Create(ctx, user.ID, time.Hour)

		n, err := repo.RevokeAll(ctx, user.ID)
		if err != nil {
			t.Fatalf("revoke failed: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 revoked tokens, got %d", n)
		}
		for _, tok := range []string{a.Token, b.Token} {
			if _, err := repo.Consume(ctx, tok); err == nil {
				t.Error("revoked token should not be consumable")
			}
		}
	})

	t.Run("Unknown Token", func(t *testing.T) {
		if _, err := repo.Consume(ctx, "nope"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMembershipRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Rejects Unknown Table", func(t *testing.T) {
		db := setupTestDB(t)
		if _, err := NewMembershipRepository(db, "users"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	for _, table := range MembershipTables {
		t.Run(table, func(t *testing.T) {
			db := setupTestDB(t)
			alice := mustRegister(t, db, "alice@example.com")
			bob := mustRegister(t, db, "bob@example.com")
			repo, err := NewMembershipRepository(db, table)
			if err != nil {
				t.Fatalf("failed to create repository: %v", err)
			}

			t.Run("Insert And List Newest First", func(t *testing.T) {
				for _, id := range []int{1, 2, 3} {
					if _, err := repo.Insert(ctx, alice.ID, id, models.MediaMovie); err != nil {
						t.Fatalf("insert %d failed: %v", id, err)
					}
					time.Sleep(2 * time.Millisecond)
				}

				items, err := repo.List(ctx, alice.ID, Filter{}, false, 0)
				if err != nil {
					t.Fatalf("list failed: %v", err)
				}
				if len(items) != 3 || items[0].MediaID != 3 || items[2].MediaID != 1 {
					t.Errorf("expected newest first, got %+v", items)
				}

				asc, _ := repo.List(ctx, alice.ID, Filter{}, true, 2)
				if len(asc) != 2 || asc[0].MediaID != 1 {
					t.Errorf("expected oldest first with limit, got %+v", asc)
				}
			})

			t.Run("Duplicate Is Conflict", func(t *testing.T) {
				_, err := repo.Insert(ctx, alice.ID, 1, models.MediaMovie)
				if !errors.Is(err, shared.ErrConflict) {
					t.Errorf("expected ErrConflict, got %v", err)
				}
				if _, err := repo.Insert(ctx, alice.ID, 1, models.MediaTV); err != nil {
					t.Errorf("same id with another media type should insert: %v", err)
				}
			})

			t.Run("Invalid Media Type", func(t *testing.T) {
				if _, err := repo.Insert(ctx, alice.ID, 9, "book"); !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
			})

			t.Run("Users Are Isolated", func(t *testing.T) {
				items, err := repo.List(ctx, bob.ID, Filter{}, false, 0)
				if err != nil {
					t.Fatalf("list failed: %v", err)
				}
				if len(items) != 0 {
					t.Errorf("bob should not see alice's rows, got %d", len(items))
				}

				deleted, err := repo.Delete(ctx, bob.ID, Filter{MediaID: 1, MediaType: models.MediaMovie})
				if err != nil {
					t.Fatalf("delete failed: %v", err)
				}
				if len(deleted) != 0 {
					t.Errorf("bob should not delete alice's rows, got %+v", deleted)
				}
			})

			t.Run("Delete Returns Rows", func(t *testing.T) {
				deleted, err := repo.Delete(ctx, alice.ID, Filter{MediaID: 2, MediaType: models.MediaMovie})
				if err != nil {
					t.Fatalf("delete failed: %v", err)
				}
				if len(deleted) != 1 || deleted[0].MediaID != 2 {
					t.Errorf("expected the deleted row, got %+v", deleted)
				}

				again, err := repo.Delete(ctx, alice.ID, Filter{MediaID: 2, MediaType: models.MediaMovie})
				if err != nil {
					t.Fatalf("delete failed: %v", err)
				}
				if again == nil || len(again) != 0 {
					t.Errorf("expected empty, non-nil result, got %+v", again)
				}
			})
		})
	}
}

func TestProgressRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	user := mustRegister(t, db, "test@example.com")
	repo := NewProgressRepository(db)

	t.Run("Upsert Keys On User And Title", func(t *testing.T) {
		first, err := repo.Upsert(ctx, models.WatchProgress{UserID: user.ID, MediaID: 550, MediaType: models.MediaMovie, Progress: 25})
		if err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		second, err := repo.Upsert(ctx, models.WatchProgress{UserID: user.ID, MediaID: 550, MediaType: models.MediaMovie, Progress: 130})
		if err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		if second.ID != first.ID {
			t.Errorf("expected the same row to be updated, got %s and %s", first.ID, second.ID)
		}
		if second.Progress != 100 {
			t.Errorf("expected progress clamped to 100, got %v", second.Progress)
		}

		rows, _ := repo.List(ctx, user.ID, Filter{}, 0)
		if len(rows) != 1 {
			t.Errorf("expected one row, got %d", len(rows))
		}
	})

	t.Run("List Is Most Recent First And Limited", func(t *testing.T) {
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		for i := 1; i <= 25; i++ {
			_, err := repo.Upsert(ctx, models.WatchProgress{
				UserID: user.ID, MediaID: 1000 + i, MediaType: models.MediaTV, Progress: 10,
				LastWatched: base.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				t.Fatalf("upsert failed: %v", err)
			}
		}

		rows, err := repo.List(ctx, user.ID, Filter{MediaType: models.MediaTV}, 20)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(rows) != 20 {
			t.Fatalf("expected 20 rows, got %d", len(rows))
		}
		if rows[0].MediaID != 1025 {
			t.Errorf("expected most recent first, got %d", rows[0].MediaID)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		n, err := repo.Delete(ctx, user.ID, Filter{MediaID: 550, MediaType: models.MediaMovie})
		if err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected one deleted row, got %d", n)
		}
	})
}
