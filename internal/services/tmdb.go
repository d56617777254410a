package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/shared"
)

const (
	DefaultTMDBBaseURL  = "https://api.themoviedb.org/3"
	DefaultImageBaseURL = "https://image.tmdb.org/t/p"
	DefaultCacheTTL     = time.Hour
	PlaceholderImage    = "/placeholder-movie.jpg"
)

// ResponseCache stores raw metadata API responses along with their fetch time.
type ResponseCache interface {
	Get(key string) ([]byte, time.Time, bool)
	Put(key string, body []byte, at time.Time) error
}

// TMDBOptions configures a [TMDBClient]. Zero values fall back to defaults.
type TMDBOptions struct {
	APIKey            string
	BaseURL           string
	ImageBaseURL      string
	CacheTTL          time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Cache             ResponseCache
	Logger            *log.Logger
}

// TMDBClient reads the movie and TV catalog.
type TMDBClient struct {
	apiKey    string
	baseURL   string
	imageBase string
	ttl       time.Duration
	client    *http.Client
	cache     ResponseCache
	limiter   *rate.Limiter
	logger    *log.Logger
	now       func() time.Time
}

// NewTMDBClient creates a client from opts.
func NewTMDBClient(opts TMDBOptions) *TMDBClient {
	c := &TMDBClient{
		apiKey:    opts.APIKey,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		imageBase: strings.TrimRight(opts.ImageBaseURL, "/"),
		ttl:       opts.CacheTTL,
		client:    opts.HTTPClient,
		cache:     opts.Cache,
		logger:    shared.ComponentLogger(opts.Logger, "tmdb"),
		now:       time.Now,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultTMDBBaseURL
	}
	if c.imageBase == "" {
		c.imageBase = DefaultImageBaseURL
	}
	if c.ttl <= 0 {
		c.ttl = DefaultCacheTTL
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 10 * time.Second}
	}

	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(1, int(opts.RequestsPerSecond)))
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return c
}

// cacheKey identifies a request by endpoint and sorted params. The api key is never part of it.
func cacheKey(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}
	return endpoint + "?" + params.Encode()
}

// get fetches endpoint into dest, serving from the response cache while the entry is fresh.
func (c *TMDBClient) get(ctx context.Context, endpoint string, params url.Values, dest any) error {
	key := cacheKey(endpoint, params)

	if c.cache != nil {
		if body, at, ok := c.cache.Get(key); ok && c.now().Sub(at) < c.ttl {
			if err := json.Unmarshal(body, dest); err == nil {
				c.logger.Debug("cache hit", "key", key)
				return nil
			}
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransport, err)
	}

	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("api_key", c.apiKey)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %v", shared.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", shared.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// A rejected api key is a configuration problem, not a session one.
		kind := shared.ErrTransport
		if resp.StatusCode == http.StatusNotFound {
			kind = shared.ErrNotFound
		}
		return &shared.APIError{
			StatusCode: resp.StatusCode,
			Message:    "TMDB API error: " + http.StatusText(resp.StatusCode),
			Err:        kind,
		}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", endpoint, err)
	}

	if c.cache != nil {
		if err := c.cache.Put(key, body, c.now()); err != nil {
			c.logger.Warn("failed to cache response", "key", key, "error", err)
		}
	}
	return nil
}

func pageParams(page int) url.Values {
	if page <= 0 {
		page = 1
	}
	return url.Values{"page": {strconv.Itoa(page)}}
}

func timeWindow(w string) string {
	if w != "day" {
		return "week"
	}
	return w
}

func (c *TMDBClient) movies(ctx context.Context, endpoint string, params url.Values) ([]models.Movie, error) {
	var page models.Page[models.Movie]
	if err := c.get(ctx, endpoint, params, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *TMDBClient) shows(ctx context.Context, endpoint string, params url.Values) ([]models.TVShow, error) {
	var page models.Page[models.TVShow]
	if err := c.get(ctx, endpoint, params, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// TrendingMovies returns trending movies for window "day" or "week" (the default).
func (c *TMDBClient) TrendingMovies(ctx context.Context, window string) ([]models.Movie, error) {
	return c.movies(ctx, "/trending/movie/"+timeWindow(window), nil)
}

// TrendingTV returns trending shows for window "day" or "week" (the default).
func (c *TMDBClient) TrendingTV(ctx context.Context, window string) ([]models.TVShow, error) {
	return c.shows(ctx, "/trending/tv/"+timeWindow(window), nil)
}

func (c *TMDBClient) PopularMovies(ctx context.Context, page int) ([]models.Movie, error) {
	return c.movies(ctx, "/movie/popular", pageParams(page))
}

func (c *TMDBClient) TopRatedMovies(ctx context.Context, page int) ([]models.Movie, error) {
	return c.movies(ctx, "/movie/top_rated", pageParams(page))
}

func (c *TMDBClient) UpcomingMovies(ctx context.Context, page int) ([]models.Movie, error) {
	return c.movies(ctx, "/movie/upcoming", pageParams(page))
}

func (c *TMDBClient) NowPlayingMovies(ctx context.Context, page int) ([]models.Movie, error) {
	return c.movies(ctx, "/movie/now_playing", pageParams(page))
}

// MoviesByGenre discovers movies tagged with genreID.
func (c *TMDBClient) MoviesByGenre(ctx context.Context, genreID, page int) ([]models.Movie, error) {
	params := pageParams(page)
	params.Set("with_genres", strconv.Itoa(genreID))
	return c.movies(ctx, "/discover/movie", params)
}

func (c *TMDBClient) SearchMovies(ctx context.Context, query string, page int) ([]models.Movie, error) {
	params := pageParams(page)
	params.Set("query", query)
	return c.movies(ctx, "/search/movie", params)
}

func (c *TMDBClient) SearchTV(ctx context.Context, query string, page int) ([]models.TVShow, error) {
	params := pageParams(page)
	params.Set("query", query)
	return c.shows(ctx, "/search/tv", params)
}

// MovieDetails returns a movie with its videos and credits appended.
func (c *TMDBClient) MovieDetails(ctx context.Context, id int) (*models.MovieDetails, error) {
	var details models.MovieDetails
	params := url.Values{"append_to_response": {"videos,credits"}}
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", id), params, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

func (c *TMDBClient) MovieVideos(ctx context.Context, id int) ([]models.Video, error) {
	var list models.VideoList
	if err := c.get(ctx, fmt.Sprintf("/movie/%d/videos", id), nil, &list); err != nil {
		return nil, err
	}
	return list.Results, nil
}

// MovieGenres returns the movie genre list.
func (c *TMDBClient) MovieGenres(ctx context.Context) ([]models.Genre, error) {
	var resp struct {
		Genres []models.Genre `json:"genres"`
	}
	if err := c.get(ctx, "/genre/movie/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Genres, nil
}

func (c *TMDBClient) PopularTV(ctx context.Context, page int) ([]models.TVShow, error) {
	return c.shows(ctx, "/tv/popular", pageParams(page))
}

func (c *TMDBClient) TopRatedTV(ctx context.Context, page int) ([]models.TVShow, error) {
	return c.shows(ctx, "/tv/top_rated", pageParams(page))
}

func (c *TMDBClient) AiringTodayTV(ctx context.Context, page int) ([]models.TVShow, error) {
	return c.shows(ctx, "/tv/airing_today", pageParams(page))
}

func (c *TMDBClient) OnTheAirTV(ctx context.Context, page int) ([]models.TVShow, error) {
	return c.shows(ctx, "/tv/on_the_air", pageParams(page))
}

// TVDetails returns a show with its videos and credits appended.
func (c *TMDBClient) TVDetails(ctx context.Context, id int) (*models.TVShowDetails, error) {
	var details models.TVShowDetails
	params := url.Values{"append_to_response": {"videos,credits"}}
	if err := c.get(ctx, fmt.Sprintf("/tv/%d", id), params, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

func (c *TMDBClient) TVVideos(ctx context.Context, id int) ([]models.Video, error) {
	var list models.VideoList
	if err := c.get(ctx, fmt.Sprintf("/tv/%d/videos", id), nil, &list); err != nil {
		return nil, err
	}
	return list.Results, nil
}

// ImageURL joins an image path with a size such as "w500", or returns [PlaceholderImage] for an empty path.
func (c *TMDBClient) ImageURL(path, size string) string {
	if path == "" {
		return PlaceholderImage
	}
	return c.imageBase + "/" + size + path
}

func (c *TMDBClient) PosterURL(path string) string   { return c.ImageURL(path, "w500") }
func (c *TMDBClient) BackdropURL(path string) string { return c.ImageURL(path, "original") }

// Trailer picks the first YouTube trailer and returns it with its watch URL.
func Trailer(videos []models.Video) (models.Video, string, bool) {
	for _, v := range videos {
		if v.Type == "Trailer" && v.Site == "YouTube" {
			return v, "https://www.youtube.com/watch?v=" + url.QueryEscape(v.Key), true
		}
	}
	return models.Video{}, "", false
}
