package membership

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/flx/internal/auth"
	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/notify"
	"github.com/desertthunder/flx/internal/shared"
)

var ErrClosed = errors.New("membership set is closed")

type Options struct {
	Kind     Kind
	Local    LocalCache
	Remote   RemoteStore
	Notifier notify.Publisher
	Logger   *log.Logger
	// OnTransition observes item state changes. It runs outside the reconciler's lock.
	OnTransition func(models.Transition)
	Now          func() time.Time
}

// Reconciler owns one synchronized set.
//
// Memory and the local cache are updated together under mu. Backend calls run outside mu,
// and operations on the same key are serialized by a FIFO guard.
type Reconciler struct {
	kind         Kind
	local        LocalCache
	remote       RemoteStore
	notifier     notify.Publisher
	logger       *log.Logger
	onTransition func(models.Transition)
	now          func() time.Time
	keys         *keyGuard
	closed       atomic.Bool

	mu        sync.Mutex
	entries   []models.Entry
	userID    string
	ready     bool
	removing  map[models.Key]int
	listeners map[int]func()
	nextID    int
}

// New builds a reconciler and loads the local cache synchronously. The loaded set is
// provisional until the first auth event arrives.
func New(opts Options) *Reconciler {
	r := &Reconciler{
		kind:         opts.Kind,
		local:        opts.Local,
		remote:       opts.Remote,
		notifier:     opts.Notifier,
		logger:       shared.ComponentLogger(opts.Logger, "membership").With("set", opts.Kind.Table),
		onTransition: opts.OnTransition,
		now:          opts.Now,
		keys:         newKeyGuard(),
		removing:     make(map[models.Key]int),
		listeners:    make(map[int]func()),
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.entries = r.cached()
	return r
}

func (r *Reconciler) Kind() Kind { return r.kind }

func (r *Reconciler) cached() []models.Entry {
	if r.local == nil {
		return nil
	}
	items := r.local.Load()
	models.SortNewestFirst(items)
	entries := make([]models.Entry, len(items))
	for i, item := range items {
		entries[i] = models.Entry{Item: item, State: models.Confirmed}
	}
	return entries
}

// Ready reports whether the initial auth state has been resolved.
func (r *Reconciler) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Identity returns the user the set syncs for, or "" while anonymous.
func (r *Reconciler) Identity() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userID
}

// Items returns the set ordered newest first.
func (r *Reconciler) Items() []models.MembershipItem {
	r.mu.Lock()
	items := make([]models.MembershipItem, len(r.entries))
	for i, e := range r.entries {
		items[i] = e.Item
	}
	r.mu.Unlock()

	models.SortNewestFirst(items)
	return items
}

// Entries returns the set with each item's optimistic state, in storage order.
func (r *Reconciler) Entries() []models.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Entry(nil), r.entries...)
}

func (r *Reconciler) IsMember(mediaID int, mediaType models.MediaType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexLocked(models.Key{MediaID: mediaID, MediaType: mediaType}) >= 0
}

// Add inserts the item optimistically. It returns [shared.ErrAlreadyMember] when the key is present.
func (r *Reconciler) Add(ctx context.Context, mediaID int, mediaType models.MediaType) error {
	key, release, err := r.acquire(ctx, mediaID, mediaType)
	if err != nil {
		return err
	}
	defer release()
	return r.add(ctx, key)
}

// Remove deletes the item optimistically. It returns [shared.ErrNotMember] when the key is absent.
func (r *Reconciler) Remove(ctx context.Context, mediaID int, mediaType models.MediaType) error {
	key, release, err := r.acquire(ctx, mediaID, mediaType)
	if err != nil {
		return err
	}
	defer release()
	return r.remove(ctx, key)
}

// Toggle adds or removes depending on current membership, evaluated once earlier operations on
// the same key have finished. It reports membership after the operation.
func (r *Reconciler) Toggle(ctx context.Context, mediaID int, mediaType models.MediaType) (bool, error) {
	key, release, err := r.acquire(ctx, mediaID, mediaType)
	if err != nil {
		return false, err
	}
	defer release()

	if r.IsMember(mediaID, mediaType) {
		err = r.remove(ctx, key)
	} else {
		err = r.add(ctx, key)
	}
	return r.IsMember(mediaID, mediaType), err
}

func (r *Reconciler) acquire(ctx context.Context, mediaID int, mediaType models.MediaType) (models.Key, func(), error) {
	key := models.Key{MediaID: mediaID, MediaType: mediaType}
	if err := (models.MembershipItem{MediaID: mediaID, MediaType: mediaType}).Validate(); err != nil {
		return key, nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if r.closed.Load() {
		return key, nil, ErrClosed
	}
	release, err := r.keys.Acquire(ctx, key)
	if err != nil {
		return key, nil, err
	}
	return key, release, nil
}

func (r *Reconciler) add(ctx context.Context, key models.Key) error {
	r.mu.Lock()
	if r.indexLocked(key) >= 0 {
		r.mu.Unlock()
		return fmt.Errorf("%s in %s: %w", key, r.kind.Label, shared.ErrAlreadyMember)
	}

	item := models.NewTempItem(key.MediaID, key.MediaType, r.now())
	r.entries = append([]models.Entry{{Item: item, State: models.Pending}}, r.entries...)
	r.persistLocked()
	userID := r.userID

	if userID == "" || r.remote == nil {
		t := r.setStateLocked(key, item.ID, models.Confirmed)
		r.mu.Unlock()
		r.emit(t)
		return nil
	}
	r.mu.Unlock()

	err := r.remote.Insert(ctx, userID, key.MediaID, key.MediaType)
	if errors.Is(err, shared.ErrConflict) {
		r.logger.Info("item already present remotely", "key", key)
		err = nil
	}

	if err != nil {
		r.mu.Lock()
		closed := r.closed.Load()
		var t models.Transition
		if !closed {
			t = r.setStateLocked(key, item.ID, models.RolledBack)
		}
		// The temp item must not outlive a failed insert, even after Close.
		if i := r.indexLocked(key); i >= 0 && r.entries[i].Item.ID == item.ID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			r.persistLocked()
		}
		r.mu.Unlock()
		if closed {
			return err
		}

		r.emit(t)
		r.logger.Warn("add rolled back", "key", key, "error", err)
		r.publish(fmt.Sprintf("Failed to add to %s", r.kind.Label))
		return err
	}
	if r.closed.Load() {
		return nil
	}

	r.mu.Lock()
	t := r.setStateLocked(key, item.ID, models.Confirmed)
	r.mu.Unlock()
	r.emit(t)

	if err := r.refetch(ctx, userID); err != nil {
		r.logger.Warn("refetch after add failed", "key", key, "error", err)
	}
	return nil
}

func (r *Reconciler) remove(ctx context.Context, key models.Key) error {
	r.mu.Lock()
	i := r.indexLocked(key)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%s in %s: %w", key, r.kind.Label, shared.ErrNotMember)
	}

	removed := r.entries[i]
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	r.persistLocked()
	userID := r.userID

	if userID == "" || r.remote == nil {
		r.mu.Unlock()
		return nil
	}
	r.removing[key]++
	r.mu.Unlock()

	err := r.remote.Remove(ctx, userID, key.MediaID, key.MediaType)

	r.mu.Lock()
	if r.removing[key]--; r.removing[key] <= 0 {
		delete(r.removing, key)
	}
	if err == nil || errors.Is(err, shared.ErrConflict) {
		r.mu.Unlock()
		if err != nil {
			r.logger.Info("item was already removed remotely", "key", key)
		}
		return nil
	}

	if r.indexLocked(key) < 0 {
		r.entries = append([]models.Entry{removed}, r.entries...)
		r.persistLocked()
	}
	closed := r.closed.Load()
	r.mu.Unlock()
	if closed {
		return err
	}

	r.emit(models.Transition{Key: key, ItemID: removed.Item.ID, From: removed.State, To: models.RolledBack})
	r.logger.Warn("remove rolled back", "key", key, "error", err)
	r.publish(fmt.Sprintf("Failed to remove from %s", r.kind.Label))
	return err
}

// Resync replaces the set with the backend's copy for the current identity.
func (r *Reconciler) Resync(ctx context.Context) error {
	userID := r.Identity()
	if userID == "" {
		return shared.ErrNotAuthenticated
	}
	return r.refetch(ctx, userID)
}

func (r *Reconciler) refetch(ctx context.Context, userID string) error {
	if r.remote == nil {
		return nil
	}
	items, err := r.remote.FetchAll(ctx, userID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() || r.userID != userID {
		return nil
	}
	r.mergeLocked(items)
	return nil
}

// mergeLocked makes remote authoritative while keeping in-flight adds and dropping keys whose
// removal has not finished.
func (r *Reconciler) mergeLocked(remote []models.MembershipItem) {
	remote = models.NormalizeSet(remote)
	seen := make(map[models.Key]bool, len(remote))
	entries := make([]models.Entry, 0, len(remote))

	for _, item := range remote {
		if r.removing[item.Key()] > 0 {
			continue
		}
		seen[item.Key()] = true
		entries = append(entries, models.Entry{Item: item, State: models.Confirmed})
	}
	for _, e := range r.entries {
		if e.State == models.Pending && !seen[e.Item.Key()] {
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Item.CreatedAt.After(entries[j].Item.CreatedAt)
	})
	r.entries = entries
	r.persistLocked()
}

// HandleAuth applies an auth-state change. Sign-in fetches the remote set, sign-out falls back
// to the local cache without any remote call.
func (r *Reconciler) HandleAuth(ctx context.Context, e auth.Event) {
	if r.closed.Load() {
		return
	}

	if e.Type == auth.SignedOut || e.UserID == "" {
		r.mu.Lock()
		r.userID = ""
		r.entries = r.cached()
		r.ready = true
		r.changedLocked()
		r.mu.Unlock()
		r.logger.Debug("signed out, serving local cache", "items", len(r.Items()))
		return
	}

	r.mu.Lock()
	r.userID = e.UserID
	r.mu.Unlock()

	if err := r.refetch(ctx, e.UserID); err != nil {
		r.logger.Warn("failed to fetch remote set, keeping local copy", "user_id", e.UserID, "error", err)
	}

	r.mu.Lock()
	r.ready = true
	r.mu.Unlock()
}

// Watch subscribes to o and replays its latest event. The returned function unsubscribes.
func (r *Reconciler) Watch(o *auth.Observer) (unsubscribe func()) {
	unsubscribe = o.Subscribe(r.HandleAuth)
	if e, ok := o.Last(); ok {
		r.HandleAuth(context.Background(), e)
	}
	return unsubscribe
}

// OnChange registers fn to run after every change to the set, optimistic ones included.
// fn runs under the set's lock, so it must not block or call back into the reconciler.
func (r *Reconciler) OnChange(fn func()) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Close stops the reconciler. Results of backend calls still in flight are discarded.
func (r *Reconciler) Close() {
	r.closed.Store(true)
}

func (r *Reconciler) indexLocked(key models.Key) int {
	for i, e := range r.entries {
		if e.Item.Key() == key {
			return i
		}
	}
	return -1
}

func (r *Reconciler) persistLocked() {
	r.changedLocked()
	if r.local == nil {
		return
	}
	items := make([]models.MembershipItem, len(r.entries))
	for i, e := range r.entries {
		items[i] = e.Item
	}
	r.local.Save(items)
}

// setStateLocked moves the entry holding itemID to next and returns the transition.
func (r *Reconciler) setStateLocked(key models.Key, itemID string, next models.ItemState) models.Transition {
	t := models.Transition{Key: key, ItemID: itemID, From: models.Pending, To: next}
	i := r.indexLocked(key)
	if i < 0 || r.entries[i].Item.ID != itemID {
		return t
	}
	t.From = r.entries[i].State
	if t.From.CanTransition(next) {
		r.entries[i].State = next
		r.changedLocked()
	}
	return t
}

func (r *Reconciler) changedLocked() {
	for _, fn := range r.listeners {
		fn()
	}
}

func (r *Reconciler) emit(t models.Transition) {
	r.logger.Debug("item state", "key", t.Key, "from", t.From, "to", t.To)
	if r.onTransition != nil {
		r.onTransition(t)
	}
}

func (r *Reconciler) publish(message string) {
	if r.notifier != nil && !r.closed.Load() {
		r.notifier.Publish(message, notify.Error)
	}
}
