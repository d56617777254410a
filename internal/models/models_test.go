package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestMediaType(t *testing.T) {
	t.Run("ParseMediaType", func(t *testing.T) {
		cases := map[string]MediaType{"movie": MediaMovie, " TV ": MediaTV, "series": MediaTV, "film": MediaMovie}
		for in, want := range cases {
			got, err := ParseMediaType(in)
			if err != nil {
				t.Fatalf("ParseMediaType(%q) returned error: %v", in, err)
			}
			if got != want {
				t.Errorf("ParseMediaType(%q) = %q, want %q", in, got, want)
			}
		}

		if _, err := ParseMediaType("podcast"); !errors.Is(err, ErrInvalidMediaType) {
			t.Errorf("expected ErrInvalidMediaType, got %v", err)
		}
	})
}

func TestMembershipItem(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("NewTempItem", func(t *testing.T) {
		item := NewTempItem(550, MediaMovie, now)
		if !item.IsTemp() {
			t.Errorf("expected temp id, got %s", item.ID)
		}
		if item.ID != "temp_1714564800000" {
			t.Errorf("unexpected temp id %s", item.ID)
		}
		if item.Key() != (Key{MediaID: 550, MediaType: MediaMovie}) {
			t.Errorf("unexpected key %v", item.Key())
		}
	})

	t.Run("JSON round trip", func(t *testing.T) {
		item := MembershipItem{ID: "abc", MediaID: 1399, MediaType: MediaTV, CreatedAt: now}
		data, err := json.Marshal(item)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}

		want := `{"id":"abc","media_id":1399,"media_type":"tv","created_at":"2024-05-01T12:00:00Z"}`
		if string(data) != want {
			t.Errorf("got %s, want %s", data, want)
		}
	})

	t.Run("NormalizeSet drops duplicates and invalid items", func(t *testing.T) {
		items := []MembershipItem{
			{ID: "1", MediaID: 1, MediaType: MediaMovie},
			{ID: "2", MediaID: 1, MediaType: MediaMovie},
			{ID: "3", MediaID: 1, MediaType: MediaTV},
			{ID: "4", MediaID: 0, MediaType: MediaTV},
			{ID: "5", MediaID: 9, MediaType: "book"},
		}

		got := NormalizeSet(items)
		if len(got) != 2 {
			t.Fatalf("expected 2 items, got %d", len(got))
		}
		if got[0].ID != "1" || got[1].ID != "3" {
			t.Errorf("unexpected items %+v", got)
		}
	})

	t.Run("SortNewestFirst", func(t *testing.T) {
		items := []MembershipItem{
			{ID: "old", CreatedAt: now.Add(-time.Hour)},
			{ID: "new", CreatedAt: now},
			{ID: "mid", CreatedAt: now.Add(-time.Minute)},
		}
		SortNewestFirst(items)
		if items[0].ID != "new" || items[1].ID != "mid" || items[2].ID != "old" {
			t.Errorf("unexpected order %v", items)
		}
	})
}

func TestItemState(t *testing.T) {
	tests := []struct {
		from, to ItemState
		ok       bool
	}{
		{Pending, Confirmed, true},
		{Pending, RolledBack, true},
		{Confirmed, RolledBack, true},
		{Confirmed, Pending, false},
		{RolledBack, Confirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.ok {
				t.Errorf("CanTransition = %v, want %v", got, tt.ok)
			}
		})
	}
}

func TestWatchProgress(t *testing.T) {
	t.Run("ClampProgress", func(t *testing.T) {
		if ClampProgress(-5) != 0 || ClampProgress(150) != 100 || ClampProgress(42.5) != 42.5 {
			t.Error("ClampProgress did not bound values")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		w := WatchProgress{UserID: "u1", MediaID: 10, MediaType: MediaMovie, Progress: 50}
		if err := w.Validate(); err != nil {
			t.Errorf("expected valid progress, got %v", err)
		}
		w.Progress = 101
		if err := w.Validate(); err == nil {
			t.Error("expected out of range progress to fail")
		}
		w.Progress = math.NaN()
		if err := w.Validate(); err == nil {
			t.Error("expected NaN progress to fail")
		}
		if ClampProgress(math.NaN()) == ClampProgress(math.NaN()) {
			t.Error("NaN should survive ClampProgress so Validate can reject it")
		}
	})
}

func TestTitle(t *testing.T) {
	m := Movie{ID: 27205, Title: "Inception", ReleaseDate: "2010-07-15"}
	title := m.AsTitle()
	if title.Year() != "2010" || title.MediaType != MediaMovie || title.Name != "Inception" {
		t.Errorf("unexpected title %+v", title)
	}

	s := TVShow{ID: 1399, Name: "Game of Thrones", FirstAirDate: ""}
	if s.AsTitle().Year() != "" {
		t.Error("expected empty year for missing date")
	}
}
