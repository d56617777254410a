package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/flx/internal/auth"
	"github.com/desertthunder/flx/internal/membership"
	"github.com/desertthunder/flx/internal/notify"
	"github.com/desertthunder/flx/internal/progress"
	"github.com/desertthunder/flx/internal/services"
	"github.com/desertthunder/flx/internal/shared"
	"github.com/desertthunder/flx/internal/store"
	"github.com/desertthunder/flx/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The client stack (local store, session, sets, catalog) is opened on first use by [Runner.open],
// so commands such as setup and serve never touch the local store.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	quiet      bool

	once      sync.Once
	openErr   error
	store     *store.Local
	ownStore  bool
	bus       *notify.Bus
	auth      *auth.Manager
	api       *services.APIService
	backend   *services.BackendClient
	tmdb      *services.TMDBClient
	engine    *tasks.CatalogEngine
	watchlist *membership.Reconciler
	likes     *membership.Reconciler
	tracker   *progress.Tracker
	closers   []func()
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Store      *store.Local // Optional: replaces the store at config cache.path
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		store:      opts.Store,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, authCommand, browseCommand, movieCommand, tvCommand,
		listCommand, likesCommand, progressCommand, exportCommand, apiCommand, cacheCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger, e.g. to keep log lines out of the TUI.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// open builds the client stack once: local store, notification bus, session, catalog and
// both synchronized sets. Restoring the session reconciles the sets with the backend.
func (r *Runner) open(ctx context.Context) error {
	r.once.Do(func() { r.openErr = r.build(ctx) })
	return r.openErr
}

func (r *Runner) build(ctx context.Context) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	if r.store == nil {
		local, err := store.Open(shared.ExpandPath(r.config.Cache.Path))
		if err != nil {
			return fmt.Errorf("failed to open local store: %w", err)
		}
		r.store = local
		r.ownStore = true
	}

	r.bus = notify.NewBus(r.logger)
	r.closers = append(r.closers, r.bus.Subscribe(r.writeNotification))

	r.auth = auth.NewManager(auth.ManagerOpts{
		BaseURL:    r.config.Backend.URL,
		ClientID:   r.config.Backend.ClientID,
		AnonKey:    r.config.Backend.AnonKey,
		Store:      r.store,
		HTTPClient: r.httpClient,
		Logger:     r.logger,
	})

	r.api = services.NewAPIService(r.config.Backend.URL, r.httpClient)
	if r.config.Backend.AnonKey != "" {
		r.api.WithHeader("apikey", r.config.Backend.AnonKey)
	}
	r.backend = services.NewBackendClient(r.api, r.auth.TokenSource(), r.logger)

	r.tmdb = services.NewTMDBClient(services.TMDBOptions{
		APIKey:            r.config.TMDB.APIKey,
		BaseURL:           r.config.TMDB.BaseURL,
		ImageBaseURL:      r.config.TMDB.ImageBaseURL,
		CacheTTL:          r.config.TMDB.CacheTTL.Duration,
		RequestsPerSecond: r.config.TMDB.RequestsPerSecond,
		HTTPClient:        r.httpClient,
		Cache:             r.store.Catalog(),
		Logger:            r.logger,
	})
	r.engine = tasks.NewCatalogEngine(r.tmdb, r.logger)

	r.watchlist = r.newSet(membership.Watchlist)
	r.likes = r.newSet(membership.Likes)
	r.tracker = progress.NewTracker(progress.NewRESTStore(r.backend), r.logger)

	observer := r.auth.Observer()
	r.closers = append(r.closers,
		r.watchlist.Watch(observer),
		r.likes.Watch(observer),
		r.tracker.Watch(observer),
	)

	r.auth.Restore(ctx)
	return nil
}

func (r *Runner) newSet(kind membership.Kind) *membership.Reconciler {
	return membership.New(membership.Options{
		Kind:     kind,
		Local:    membership.NewStoreCache(r.store, kind, r.logger),
		Remote:   membership.NewRESTStore(r.backend, kind),
		Notifier: r.bus,
		Logger:   r.logger,
	})
}

func (r *Runner) set(kind membership.Kind) *membership.Reconciler {
	if kind == membership.Likes {
		return r.likes
	}
	return r.watchlist
}

// Close tears down the client stack in reverse order of construction.
func (r *Runner) Close() error {
	if r.watchlist != nil {
		r.watchlist.Close()
		r.likes.Close()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
	if r.bus != nil {
		r.bus.Close()
	}
	if r.ownStore && r.store != nil {
		return r.store.Close()
	}
	return nil
}

// requireSession returns the signed-in user's id or [shared.ErrNotAuthenticated] with a sign-in hint.
func (r *Runner) requireSession(ctx context.Context) (string, error) {
	if err := r.open(ctx); err != nil {
		return "", err
	}
	if id := r.auth.UserID(); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: run 'flx auth login' first", shared.ErrNotAuthenticated)
}

// hint adds a sign-in hint to errors caused by a missing or rejected session.
func hint(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrNotAuthenticated) || errors.Is(err, shared.ErrAuth) {
		return fmt.Errorf("%w (run 'flx auth login' to sign in again)", err)
	}
	return err
}

// writeNotification prints bus notifications as status lines unless the TUI owns the terminal.
func (r *Runner) writeNotification(n notify.Notification) {
	if r.quiet {
		return
	}
	switch n.Level {
	case notify.Error:
		r.writePlain("✗ %s\n", n.Message)
	case notify.Success:
		r.writePlain("✓ %s\n", n.Message)
	default:
		r.writePlain("%s\n", n.Message)
	}
}

// isTerminal reports whether output goes to a terminal.
func (r *Runner) isTerminal() bool {
	f, ok := r.output.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
