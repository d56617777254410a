package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/services"
	"github.com/desertthunder/flx/internal/shared"
)

// DefaultWorkers bounds concurrent detail lookups.
const DefaultWorkers = 5

// Catalog is the metadata API surface used by the engine. [services.TMDBClient] implements it.
type Catalog interface {
	TrendingMovies(ctx context.Context, window string) ([]models.Movie, error)
	TrendingTV(ctx context.Context, window string) ([]models.TVShow, error)
	PopularMovies(ctx context.Context, page int) ([]models.Movie, error)
	TopRatedMovies(ctx context.Context, page int) ([]models.Movie, error)
	UpcomingMovies(ctx context.Context, page int) ([]models.Movie, error)
	NowPlayingMovies(ctx context.Context, page int) ([]models.Movie, error)
	PopularTV(ctx context.Context, page int) ([]models.TVShow, error)
	TopRatedTV(ctx context.Context, page int) ([]models.TVShow, error)
	AiringTodayTV(ctx context.Context, page int) ([]models.TVShow, error)
	OnTheAirTV(ctx context.Context, page int) ([]models.TVShow, error)
	MovieDetails(ctx context.Context, id int) (*models.MovieDetails, error)
	TVDetails(ctx context.Context, id int) (*models.TVShowDetails, error)
	MovieGenres(ctx context.Context) ([]models.Genre, error)
}

var _ Catalog = (*services.TMDBClient)(nil)

// Row is one named catalog row. Err is set when the row could not be fetched.
type Row struct {
	Name   string
	Titles []models.Title
	Err    error
}

// Details is the detail view of one title.
type Details struct {
	Title      models.Title
	Tagline    string
	Runtime    int // minutes, movies only
	Seasons    int // tv only
	Episodes   int // tv only
	Status     string
	Genres     []string
	Cast       []string
	Trailer    *models.Video
	TrailerURL string
}

type rowSpec struct {
	name  string
	fetch func(ctx context.Context) ([]models.Title, error)
}

func movieRow(name string, fn func(ctx context.Context) ([]models.Movie, error)) rowSpec {
	return rowSpec{name: name, fetch: func(ctx context.Context) ([]models.Title, error) {
		movies, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return models.MoviesAsTitles(movies), nil
	}}
}

func showRow(name string, fn func(ctx context.Context) ([]models.TVShow, error)) rowSpec {
	return rowSpec{name: name, fetch: func(ctx context.Context) ([]models.Title, error) {
		shows, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return models.ShowsAsTitles(shows), nil
	}}
}

// Pages lists the names accepted by [CatalogEngine.Rows].
var Pages = []string{"home", "movies", "tv", "new"}

// CatalogEngine fetches and combines catalog data.
type CatalogEngine struct {
	catalog Catalog
	workers int
	logger  *log.Logger
}

// NewCatalogEngine creates a [CatalogEngine] over catalog.
func NewCatalogEngine(catalog Catalog, logger *log.Logger) *CatalogEngine {
	return &CatalogEngine{catalog: catalog, workers: DefaultWorkers, logger: shared.ComponentLogger(logger, "tasks")}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func (e *CatalogEngine) page(name string) ([]rowSpec, error) {
	c := e.catalog
	firstPage := func(fn func(context.Context, int) ([]models.Movie, error)) func(context.Context) ([]models.Movie, error) {
		return func(ctx context.Context) ([]models.Movie, error) { return fn(ctx, 1) }
	}
	firstShows := func(fn func(context.Context, int) ([]models.TVShow, error)) func(context.Context) ([]models.TVShow, error) {
		return func(ctx context.Context) ([]models.TVShow, error) { return fn(ctx, 1) }
	}
	trendingMovies := func(window string) func(context.Context) ([]models.Movie, error) {
		return func(ctx context.Context) ([]models.Movie, error) { return c.TrendingMovies(ctx, window) }
	}
	trendingShows := func(window string) func(context.Context) ([]models.TVShow, error) {
		return func(ctx context.Context) ([]models.TVShow, error) { return c.TrendingTV(ctx, window) }
	}

	switch name {
	case "", "home":
		return []rowSpec{
			movieRow("Trending Now", trendingMovies("week")),
			movieRow("Popular Movies", firstPage(c.PopularMovies)),
			movieRow("Top Rated", firstPage(c.TopRatedMovies)),
			showRow("Trending TV Shows", trendingShows("week")),
			showRow("Popular TV Shows", firstShows(c.PopularTV)),
		}, nil
	case "movies":
		return []rowSpec{
			movieRow("Trending Now", trendingMovies("week")),
			movieRow("Popular", firstPage(c.PopularMovies)),
			movieRow("Top Rated", firstPage(c.TopRatedMovies)),
			movieRow("Coming Soon", firstPage(c.UpcomingMovies)),
			movieRow("Now Playing", firstPage(c.NowPlayingMovies)),
		}, nil
	case "tv":
		return []rowSpec{
			showRow("Trending Now", trendingShows("week")),
			showRow("Popular", firstShows(c.PopularTV)),
			showRow("Top Rated", firstShows(c.TopRatedTV)),
			showRow("Airing Today", firstShows(c.AiringTodayTV)),
			showRow("On The Air", firstShows(c.OnTheAirTV)),
		}, nil
	case "new":
		return []rowSpec{
			movieRow("Trending Today", trendingMovies("day")),
			movieRow("Now Playing in Theaters", firstPage(c.NowPlayingMovies)),
			movieRow("Coming Soon", firstPage(c.UpcomingMovies)),
			showRow("Trending TV Shows", trendingShows("day")),
			showRow("Airing Today", firstShows(c.AiringTodayTV)),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown page %q (want %s)", shared.ErrInvalidArgument, name, strings.Join(Pages, ", "))
	}
}

// Rows fetches every row of a page concurrently. Rows are returned in page order. A failed row carries its
// error and the others are still returned; an error is returned only when every row failed.
func (e *CatalogEngine) Rows(ctx context.Context, page string, progress chan<- ProgressUpdate) ([]Row, error) {
	specs, err := e.page(page)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, len(specs))
	total := len(specs)
	var done atomic.Int32
	sendProgress(progress, fetchingRowsUpdate(total, page))

	var g errgroup.Group
	for i, spec := range specs {
		g.Go(func() error {
			titles, err := spec.fetch(ctx)
			rows[i] = Row{Name: spec.name, Titles: titles, Err: err}
			if err != nil {
				e.logger.Warn("row failed", "row", spec.name, "err", err)
			}
			sendProgress(progress, rowUpdate(int(done.Add(1)), total, rows[i]))
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, row := range rows {
		if row.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", row.Name, row.Err))
		}
	}
	if len(errs) == total {
		return rows, errors.Join(errs...)
	}
	return rows, nil
}

// Title looks up the summary of one title.
func (e *CatalogEngine) Title(ctx context.Context, key models.Key) (models.Title, error) {
	switch key.MediaType {
	case models.MediaMovie:
		d, err := e.catalog.MovieDetails(ctx, key.MediaID)
		if err != nil {
			return models.Title{}, err
		}
		return d.AsTitle(), nil
	case models.MediaTV:
		d, err := e.catalog.TVDetails(ctx, key.MediaID)
		if err != nil {
			return models.Title{}, err
		}
		return d.AsTitle(), nil
	default:
		return models.Title{}, fmt.Errorf("%w: %q", models.ErrInvalidMediaType, key.MediaType)
	}
}

func genreNames(genres []models.Genre) []string {
	names := make([]string, len(genres))
	for i, g := range genres {
		names[i] = g.Name
	}
	return names
}

func castNames(credits *models.Credits, limit int) []string {
	if credits == nil {
		return nil
	}
	names := make([]string, 0, min(limit, len(credits.Cast)))
	for _, c := range credits.Cast {
		if len(names) == limit {
			break
		}
		names = append(names, c.Name)
	}
	return names
}

func withTrailer(d *Details, videos *models.VideoList) {
	if videos == nil {
		return
	}
	if v, url, ok := services.Trailer(videos.Results); ok {
		d.Trailer = &v
		d.TrailerURL = url
	}
}

// Details fetches the detail view of a title, including its cast and trailer.
func (e *CatalogEngine) Details(ctx context.Context, key models.Key, progress chan<- ProgressUpdate) (*Details, error) {
	sendProgress(progress, fetchingDetailsUpdate(key))

	switch key.MediaType {
	case models.MediaMovie:
		m, err := e.catalog.MovieDetails(ctx, key.MediaID)
		if err != nil {
			return nil, err
		}
		d := &Details{
			Title:   m.AsTitle(),
			Tagline: m.Tagline,
			Runtime: m.Runtime,
			Status:  m.Status,
			Genres:  genreNames(m.Genres),
			Cast:    castNames(m.Credits, 5),
		}
		withTrailer(d, m.Videos)
		return d, nil

	case models.MediaTV:
		s, err := e.catalog.TVDetails(ctx, key.MediaID)
		if err != nil {
			return nil, err
		}
		d := &Details{
			Title:    s.AsTitle(),
			Tagline:  s.Tagline,
			Seasons:  s.NumberOfSeasons,
			Episodes: s.NumberOfEpisodes,
			Status:   s.Status,
			Genres:   genreNames(s.Genres),
			Cast:     castNames(s.Credits, 5),
		}
		withTrailer(d, s.Videos)
		return d, nil

	default:
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidMediaType, key.MediaType)
	}
}

// ResolveTitles looks up the title of every item with at most [DefaultWorkers] lookups in flight.
// Entries keep the order of items. Items whose lookup fails keep a nil title.
func (e *CatalogEngine) ResolveTitles(ctx context.Context, items []models.MembershipItem, progress chan<- ProgressUpdate) ([]models.ListEntry, error) {
	entries := make([]models.ListEntry, len(items))
	total := len(items)
	sendProgress(progress, resolvingTitlesUpdate(total))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, item := range items {
		g.Go(func() error {
			entries[i] = models.ListEntry{Item: item}
			title, err := e.Title(gctx, item.Key())
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.logger.Warn("failed to resolve title", "key", item.Key(), "err", err)
			} else {
				entries[i].Title = &title
			}

			mu.Lock()
			done++
			step := done
			mu.Unlock()
			sendProgress(progress, resolvedTitleUpdate(step, total, entries[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// FindGenre resolves a genre name, tolerating case differences and partial input.
func (e *CatalogEngine) FindGenre(ctx context.Context, name string) (models.Genre, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Genre{}, fmt.Errorf("%w: genre name", shared.ErrMissingArgument)
	}

	genres, err := e.catalog.MovieGenres(ctx)
	if err != nil {
		return models.Genre{}, err
	}

	for _, g := range genres {
		if strings.EqualFold(g.Name, name) {
			return g, nil
		}
	}

	ranks := fuzzy.RankFindNormalizedFold(name, genreNames(genres))
	if len(ranks) == 0 {
		return models.Genre{}, fmt.Errorf("genre %q: %w", name, shared.ErrNotFound)
	}
	sort.Sort(ranks)
	return genres[ranks[0].OriginalIndex], nil
}
