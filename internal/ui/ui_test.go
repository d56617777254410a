package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/flx/internal/auth"
	"github.com/desertthunder/flx/internal/membership"
	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/notify"
	"github.com/desertthunder/flx/internal/tasks"
)

// stubCatalog serves the home page and movie details. Other calls panic through the nil embedded interface.
type stubCatalog struct {
	tasks.Catalog
	err error
}

func (s *stubCatalog) TrendingMovies(context.Context, string) ([]models.Movie, error) {
	return []models.Movie{{ID: 550, Title: "Fight Club", ReleaseDate: "1999-10-15", VoteAverage: 8.4}}, s.err
}

func (s *stubCatalog) PopularMovies(context.Context, int) ([]models.Movie, error) {
	return []models.Movie{{ID: 27205, Title: "Inception", ReleaseDate: "2010-07-15"}}, s.err
}

func (s *stubCatalog) TopRatedMovies(context.Context, int) ([]models.Movie, error) {
	return []models.Movie{{ID: 550, Title: "Fight Club"}}, s.err
}

func (s *stubCatalog) TrendingTV(context.Context, string) ([]models.TVShow, error) {
	return []models.TVShow{{ID: 1396, Name: "Breaking Bad"}}, s.err
}

func (s *stubCatalog) PopularTV(context.Context, int) ([]models.TVShow, error) {
	return nil, s.err
}

func (s *stubCatalog) MovieDetails(_ context.Context, id int) (*models.MovieDetails, error) {
	return &models.MovieDetails{
		Movie:   models.Movie{ID: id, Title: "Fight Club", ReleaseDate: "1999-10-15"},
		Runtime: 139,
		Videos:  &models.VideoList{Results: []models.Video{{Key: "abc", Site: "YouTube", Type: "Trailer"}}},
	}, nil
}

// gatedRemote holds every insert until gate closes and serves what it inserted.
type gatedRemote struct {
	gate chan struct{}
	mu   sync.Mutex
	rows []models.MembershipItem
}

func (g *gatedRemote) FetchAll(context.Context, string) ([]models.MembershipItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.MembershipItem(nil), g.rows...), nil
}

func (g *gatedRemote) Insert(ctx context.Context, _ string, mediaID int, mediaType models.MediaType) error {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows = append(g.rows, models.MembershipItem{
		ID: "row-1", MediaID: mediaID, MediaType: mediaType, CreatedAt: time.Now(),
	})
	return nil
}

func (g *gatedRemote) Remove(context.Context, string, int, models.MediaType) error {
	return nil
}

func newTestModel(t *testing.T, catalog tasks.Catalog) (*Model, *notify.Bus) {
	t.Helper()
	bus := notify.NewBus(nil)
	m := NewModel(context.Background(), Options{
		Engine:    tasks.NewCatalogEngine(catalog, nil),
		Watchlist: membership.New(membership.Options{Kind: membership.Watchlist}),
		Likes:     membership.New(membership.Options{Kind: membership.Likes}),
		Bus:       bus,
	})
	t.Cleanup(func() {
		m.Close()
		bus.Close()
	})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m, bus
}

func press(m *Model, k string) tea.Cmd {
	var msg tea.KeyMsg
	switch k {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	_, cmd := m.Update(msg)
	return cmd
}

func loadRows(t *testing.T, m *Model) {
	t.Helper()
	m.Update(m.fetchRows()())
}

func TestModel(t *testing.T) {
	t.Run("rows fill the trending tab without duplicates", func(t *testing.T) {
		m, _ := newTestModel(t, &stubCatalog{})
		loadRows(t, m)

		if got := len(m.lists[TrendingTab].Items()); got != 3 {
			t.Fatalf("expected 3 trending titles, got %d", got)
		}
		if !strings.Contains(m.View(), "Fight Club") {
			t.Errorf("view should list Fight Club:\n%s", m.View())
		}
	})

	t.Run("load errors show in the status line", func(t *testing.T) {
		m, _ := newTestModel(t, &stubCatalog{err: errors.New("offline")})
		loadRows(t, m)

		if m.status == nil || m.status.Level != notify.Error {
			t.Fatalf("expected an error status, got %+v", m.status)
		}
		if !strings.Contains(m.View(), "offline") {
			t.Errorf("status line should show the error:\n%s", m.View())
		}
	})

	t.Run("w toggles the selected title in my list", func(t *testing.T) {
		m, _ := newTestModel(t, &stubCatalog{})
		loadRows(t, m)

		cmd := press(m, "w")
		if cmd == nil {
			t.Fatal("expected a toggle command")
		}
		m.Update(cmd())

		if !m.watchlist.IsMember(550, models.MediaMovie) {
			t.Fatal("Fight Club should be in my list")
		}
		item := m.lists[TrendingTab].Items()[0].(titleItem)
		if !item.inList || item.liked {
			t.Errorf("unexpected badges %+v", item)
		}

		m.Update(press(m, "w")())
		if m.watchlist.IsMember(550, models.MediaMovie) {
			t.Error("second toggle should remove the title")
		}
	})

	t.Run("successful toggles publish a notification", func(t *testing.T) {
		m, _ := newTestModel(t, &stubCatalog{})
		loadRows(t, m)

		m.Update(press(m, "l")())
		msg := m.waitForNotification()()
		m.Update(msg)

		if m.status == nil || !strings.Contains(m.status.Message, "Added Fight Club to Liked") {
			t.Fatalf("unexpected status %+v", m.status)
		}

		m.Update(statusExpiredMsg(m.status.ID))
		if m.status != nil {
			t.Error("status should clear once expired")
		}
	})

	t.Run("tab switches to my list", func(t *testing.T) {
		m, _ := newTestModel(t, &stubCatalog{})
		loadRows(t, m)
		m.Update(press(m, "w")())

		press(m, "tab")
		if m.tab != ListTab {
			t.Fatalf("expected ListTab, got %v", m.tab)
		}
		if got := len(m.lists[ListTab].Items()); got != 1 {
			t.Errorf("expected 1 item in my list, got %d", got)
		}
		if !strings.Contains(m.View(), "My List (1)") {
			t.Errorf("tab label should carry the count:\n%s", m.View())
		}

		press(m, "tab")
		press(m, "tab")
		if m.tab != TrendingTab {
			t.Errorf("tabs should wrap around, got %v", m.tab)
		}
	})

	t.Run("enter opens details and esc goes back", func(t *testing.T) {
		m, _ := newTestModel(t, &stubCatalog{})
		loadRows(t, m)

		m.Update(press(m, "enter")())
		if m.view != DetailView {
			t.Fatalf("expected DetailView, got %v", m.view)
		}
		view := m.View()
		if !strings.Contains(view, "https://www.youtube.com/watch?v=abc") || !strings.Contains(view, "139 min") {
			t.Errorf("details should show runtime and trailer:\n%s", view)
		}

		press(m, "esc")
		if m.view != BrowseView {
			t.Errorf("esc should return to BrowseView")
		}
	})

	t.Run("q quits", func(t *testing.T) {
		m, _ := newTestModel(t, &stubCatalog{})
		cmd := press(m, "q")
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})
}

func TestOptimisticToggle(t *testing.T) {
	ctx := context.Background()
	remote := &gatedRemote{gate: make(chan struct{})}
	watchlist := membership.New(membership.Options{Kind: membership.Watchlist, Remote: remote})
	watchlist.HandleAuth(ctx, auth.SignedInEvent("u1"))

	m := NewModel(ctx, Options{
		Engine:    tasks.NewCatalogEngine(&stubCatalog{}, nil),
		Watchlist: watchlist,
		Likes:     membership.New(membership.Options{Kind: membership.Likes}),
	})
	t.Cleanup(m.Close)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	loadRows(t, m)

	select {
	case <-m.changes:
	default:
	}

	done := make(chan tea.Msg, 1)
	cmd := press(m, "w")
	go func() { done <- cmd() }()

	m.Update(m.waitForChange()())

	item := m.lists[TrendingTab].Items()[0].(titleItem)
	if !item.inList {
		t.Fatal("the title should show as in my list before the backend answers")
	}
	if got := len(m.lists[ListTab].Items()); got != 1 {
		t.Fatalf("expected the pending title in my list, got %d items", got)
	}
	select {
	case <-done:
		t.Fatal("toggle finished before the insert was released")
	default:
	}

	close(remote.gate)
	m.Update(<-done)

	if !m.watchlist.IsMember(550, models.MediaMovie) {
		t.Error("Fight Club should stay in my list once confirmed")
	}
	if entries := watchlist.Entries(); len(entries) != 1 || entries[0].State != models.Confirmed {
		t.Errorf("expected one confirmed entry, got %+v", entries)
	}
}
