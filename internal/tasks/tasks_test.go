package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/flx/internal/formatter"
	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/shared"
)

var errBoom = errors.New("boom")

type fakeCatalog struct {
	mu       sync.Mutex
	calls    []string
	failing  map[string]bool
	windows  []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (f *fakeCatalog) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.failing[name] {
		return errBoom
	}
	return nil
}

func movies(ids ...int) []models.Movie {
	out := make([]models.Movie, len(ids))
	for i, id := range ids {
		out[i] = models.Movie{ID: id, Title: "Movie " + string(rune('A'+i)), ReleaseDate: "2020-01-01"}
	}
	return out
}

func shows(ids ...int) []models.TVShow {
	out := make([]models.TVShow, len(ids))
	for i, id := range ids {
		out[i] = models.TVShow{ID: id, Name: "Show " + string(rune('A'+i))}
	}
	return out
}

func (f *fakeCatalog) TrendingMovies(_ context.Context, window string) ([]models.Movie, error) {
	f.mu.Lock()
	f.windows = append(f.windows, window)
	f.mu.Unlock()
	return movies(1, 2), f.record("trending_movies")
}

func (f *fakeCatalog) TrendingTV(_ context.Context, window string) ([]models.TVShow, error) {
	return shows(10), f.record("trending_tv")
}

func (f *fakeCatalog) PopularMovies(context.Context, int) ([]models.Movie, error) {
	return movies(3), f.record("popular_movies")
}

func (f *fakeCatalog) TopRatedMovies(context.Context, int) ([]models.Movie, error) {
	return movies(4), f.record("top_rated_movies")
}

func (f *fakeCatalog) UpcomingMovies(context.Context, int) ([]models.Movie, error) {
	return movies(5), f.record("upcoming_movies")
}

func (f *fakeCatalog) NowPlayingMovies(context.Context, int) ([]models.Movie, error) {
	return movies(6), f.record("now_playing_movies")
}

func (f *fakeCatalog) PopularTV(context.Context, int) ([]models.TVShow, error) {
	return shows(11), f.record("popular_tv")
}

func (f *fakeCatalog) TopRatedTV(context.Context, int) ([]models.TVShow, error) {
	return shows(12), f.record("top_rated_tv")
}

func (f *fakeCatalog) AiringTodayTV(context.Context, int) ([]models.TVShow, error) {
	return shows(13), f.record("airing_today_tv")
}

func (f *fakeCatalog) OnTheAirTV(context.Context, int) ([]models.TVShow, error) {
	return shows(14), f.record("on_the_air_tv")
}

func (f *fakeCatalog) track() func() {
	n := f.inFlight.Add(1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeCatalog) MovieDetails(_ context.Context, id int) (*models.MovieDetails, error) {
	defer f.track()()
	if id == 404 {
		return nil, shared.NewAPIError(404, "not found")
	}
	return &models.MovieDetails{
		Movie:   models.Movie{ID: id, Title: "Fight Club", ReleaseDate: "1999-10-15", BackdropPath: "/bd.jpg"},
		Runtime: 139,
		Genres:  []models.Genre{{ID: 18, Name: "Drama"}},
		Credits: &models.Credits{Cast: []models.CastMember{{Name: "Edward Norton"}, {Name: "Brad Pitt"}}},
		Videos: &models.VideoList{Results: []models.Video{
			{Key: "teaser", Site: "YouTube", Type: "Teaser"},
			{Key: "abc", Site: "YouTube", Type: "Trailer"},
		}},
	}, nil
}

func (f *fakeCatalog) TVDetails(_ context.Context, id int) (*models.TVShowDetails, error) {
	defer f.track()()
	return &models.TVShowDetails{
		TVShow:          models.TVShow{ID: id, Name: "Breaking Bad", FirstAirDate: "2008-01-20"},
		NumberOfSeasons: 5,
		Genres:          []models.Genre{{ID: 18, Name: "Drama"}},
	}, nil
}

func (f *fakeCatalog) MovieGenres(context.Context) ([]models.Genre, error) {
	if err := f.record("genres"); err != nil {
		return nil, err
	}
	return []models.Genre{{ID: 28, Name: "Action"}, {ID: 878, Name: "Science Fiction"}, {ID: 18, Name: "Drama"}}, nil
}

func drain(ch chan ProgressUpdate) []ProgressUpdate {
	var out []ProgressUpdate
	for {
		select {
		case u := <-ch:
			out = append(out, u)
		default:
			return out
		}
	}
}

func TestRows(t *testing.T) {
	ctx := context.Background()

	t.Run("pages keep row order", func(t *testing.T) {
		cat := &fakeCatalog{}
		engine := NewCatalogEngine(cat, nil)
		progress := make(chan ProgressUpdate, 16)

		rows, err := engine.Rows(ctx, "movies", progress)
		require.NoError(t, err)

		names := make([]string, len(rows))
		for i, r := range rows {
			names[i] = r.Name
		}
		assert.Equal(t, []string{"Trending Now", "Popular", "Top Rated", "Coming Soon", "Now Playing"}, names)
		assert.Equal(t, 2, len(rows[0].Titles))
		assert.Equal(t, models.MediaMovie, rows[0].Titles[0].MediaType)

		updates := drain(progress)
		require.Len(t, updates, 6)
		assert.Equal(t, FetchRows, updates[0].Phase)
		assert.Zero(t, updates[0].Step)
		for _, u := range updates[1:] {
			assert.IsType(t, Row{}, u.Data)
		}
	})

	t.Run("new page uses the daily window", func(t *testing.T) {
		cat := &fakeCatalog{}
		_, err := NewCatalogEngine(cat, nil).Rows(ctx, "new", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"day"}, cat.windows)
	})

	t.Run("a failing row does not fail the page", func(t *testing.T) {
		cat := &fakeCatalog{failing: map[string]bool{"airing_today_tv": true}}
		rows, err := NewCatalogEngine(cat, nil).Rows(ctx, "tv", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, rows[3].Err, errBoom)
		assert.NoError(t, rows[0].Err)
	})

	t.Run("every row failing fails the page", func(t *testing.T) {
		cat := &fakeCatalog{failing: map[string]bool{
			"trending_tv": true, "popular_tv": true, "top_rated_tv": true, "airing_today_tv": true, "on_the_air_tv": true,
		}}
		_, err := NewCatalogEngine(cat, nil).Rows(ctx, "tv", nil)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("unknown page", func(t *testing.T) {
		_, err := NewCatalogEngine(&fakeCatalog{}, nil).Rows(ctx, "kids", nil)
		assert.ErrorIs(t, err, shared.ErrInvalidArgument)
	})
}

func TestDetails(t *testing.T) {
	engine := NewCatalogEngine(&fakeCatalog{}, nil)
	ctx := context.Background()

	d, err := engine.Details(ctx, models.Key{MediaID: 550, MediaType: models.MediaMovie}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Fight Club", d.Title.Name)
	assert.Equal(t, 139, d.Runtime)
	assert.Equal(t, []string{"Drama"}, d.Genres)
	assert.Equal(t, []string{"Edward Norton", "Brad Pitt"}, d.Cast)
	require.NotNil(t, d.Trailer)
	assert.Equal(t, "abc", d.Trailer.Key)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", d.TrailerURL)

	tv, err := engine.Details(ctx, models.Key{MediaID: 1396, MediaType: models.MediaTV}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, tv.Seasons)
	assert.Nil(t, tv.Trailer)

	_, err = engine.Details(ctx, models.Key{MediaID: 1, MediaType: "book"}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidMediaType)

	_, err = engine.Details(ctx, models.Key{MediaID: 404, MediaType: models.MediaMovie}, nil)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResolveTitles(t *testing.T) {
	cat := &fakeCatalog{delay: 5 * time.Millisecond}
	engine := NewCatalogEngine(cat, nil)

	var items []models.MembershipItem
	for i := 1; i <= 12; i++ {
		items = append(items, models.MembershipItem{ID: "x", MediaID: i, MediaType: models.MediaMovie})
	}
	items = append(items,
		models.MembershipItem{MediaID: 404, MediaType: models.MediaMovie},
		models.MembershipItem{MediaID: 1396, MediaType: models.MediaTV},
	)

	progress := make(chan ProgressUpdate, 32)
	entries, err := engine.ResolveTitles(context.Background(), items, progress)
	require.NoError(t, err)
	require.Len(t, entries, len(items))

	for i, entry := range entries {
		assert.Equal(t, items[i], entry.Item, "order must follow the input")
	}
	assert.Nil(t, entries[12].Title, "failed lookups keep a nil title")
	assert.Equal(t, "movie:404", entries[12].DisplayName())
	require.NotNil(t, entries[13].Title)
	assert.Equal(t, "Breaking Bad", entries[13].Title.Name)

	assert.LessOrEqual(t, int(cat.maxSeen.Load()), DefaultWorkers)
	assert.Len(t, drain(progress), len(items)+1)
}

func TestResolveTitlesCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []models.MembershipItem{{MediaID: 1, MediaType: models.MediaMovie}}
	engine := NewCatalogEngine(&canceledCatalog{}, nil)
	_, err := engine.ResolveTitles(ctx, items, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type canceledCatalog struct{ fakeCatalog }

func (c *canceledCatalog) MovieDetails(ctx context.Context, _ int) (*models.MovieDetails, error) {
	return nil, ctx.Err()
}

func TestFindGenre(t *testing.T) {
	engine := NewCatalogEngine(&fakeCatalog{}, nil)
	ctx := context.Background()

	g, err := engine.FindGenre(ctx, "action")
	require.NoError(t, err)
	assert.Equal(t, 28, g.ID)

	g, err = engine.FindGenre(ctx, "sci")
	require.NoError(t, err)
	assert.Equal(t, 878, g.ID)

	_, err = engine.FindGenre(ctx, "western")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = engine.FindGenre(ctx, " ")
	assert.ErrorIs(t, err, shared.ErrMissingArgument)

	_, err = NewCatalogEngine(&fakeCatalog{failing: map[string]bool{"genres": true}}, nil).FindGenre(ctx, "drama")
	assert.ErrorIs(t, err, errBoom)
}

func testExports() []*models.ListExport {
	now := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	return []*models.ListExport{
		{
			Kind: "my_list", Name: "My List", ExportedAt: now,
			Entries: []models.ListEntry{{
				Item:  models.MembershipItem{ID: "a", MediaID: 550, MediaType: models.MediaMovie, CreatedAt: now},
				Title: &models.Title{ID: 550, MediaType: models.MediaMovie, Name: "Fight Club", BackdropPath: "/bd.jpg"},
			}},
		},
		{Kind: "liked_items", Name: "Liked", ExportedAt: now, Entries: []models.ListEntry{}},
	}
}

func TestExportLists(t *testing.T) {
	engine := NewCatalogEngine(&fakeCatalog{}, nil)
	ctx := context.Background()

	cases := []struct {
		format    formatter.Format
		wantFiles map[string]int
	}{
		{formatter.FormatCSV, map[string]int{"my_list": 2, "liked_items": 2}},
		{formatter.FormatMarkdown, map[string]int{"my_list": 1, "liked_items": 1}},
		{formatter.FormatText, map[string]int{"my_list": 1, "liked_items": 1}},
		{formatter.FormatJSON, map[string]int{"my_list": 1, "liked_items": 1}},
	}

	for _, tc := range cases {
		t.Run(string(tc.format), func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "out")
			progress := make(chan ProgressUpdate, 16)

			result, err := engine.ExportLists(ctx, progress, testExports(), ExportOpts{Format: tc.format, OutputDir: dir})
			require.NoError(t, err)
			assert.Equal(t, 2, result.Total)
			assert.Equal(t, 2, result.Successful)
			assert.Zero(t, result.Failed)

			for _, res := range result.Results {
				assert.Len(t, res.Files, tc.wantFiles[res.Kind], res.Kind)
				for _, f := range res.Files {
					assert.FileExists(t, f)
				}
			}

			data, err := os.ReadFile(result.ManifestPath)
			require.NoError(t, err)
			var manifest map[string]any
			require.NoError(t, json.Unmarshal(data, &manifest))
			assert.Equal(t, string(tc.format), manifest["format"])

			assert.Len(t, drain(progress), 4)
		})
	}

	t.Run("cover url is used for markdown", func(t *testing.T) {
		var requested []string
		var mu sync.Mutex
		opts := ExportOpts{
			Format:    formatter.FormatMarkdown,
			OutputDir: t.TempDir(),
			CoverURL: func(path string) string {
				mu.Lock()
				requested = append(requested, path)
				mu.Unlock()
				return ""
			},
		}
		_, err := engine.ExportLists(ctx, nil, testExports(), opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"/bd.jpg"}, requested)
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		result, err := engine.ExportLists(cctx, nil, testExports(), ExportOpts{OutputDir: t.TempDir()})
		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, result)
		assert.Equal(t, 2, result.Failed)
	})
}
