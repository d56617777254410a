// Package notify implements the process-wide notification service.
//
// A [Bus] is created once at startup and passed to every component that reports
// user-visible outcomes (rollbacks, profile updates). Front ends subscribe to render
// notifications: the CLI prints them, the TUI shows them in its status line.
// Subscriptions are released through the returned unsubscribe function, and [Bus.Close]
// tears the bus down at exit.
package notify

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/flx/internal/shared"
)

// Level is the severity of a notification.
type Level string

const (
	Success Level = "success"
	Error   Level = "error"
	Info    Level = "info"
)

// DefaultDuration is how long front ends keep a notification visible.
const DefaultDuration = 3 * time.Second

// Notification is a transient, user-visible message.
type Notification struct {
	ID        string
	Message   string
	Level     Level
	Duration  time.Duration
	CreatedAt time.Time
}

// Publisher is the sending side of a [Bus].
type Publisher interface {
	Publish(message string, level Level) Notification
}

// Bus fans notifications out to subscribers in subscription order.
type Bus struct {
	mu     sync.Mutex
	subs   map[uint64]func(Notification)
	order  []uint64
	next   uint64
	closed bool
	logger *log.Logger
	now    func() time.Time
}

var _ Publisher = (*Bus)(nil)

// NewBus creates an open bus. logger may be nil.
func NewBus(logger *log.Logger) *Bus {
	return &Bus{
		subs:   make(map[uint64]func(Notification)),
		logger: shared.ComponentLogger(logger, "notify"),
		now:    time.Now,
	}
}

// Subscribe registers fn and returns a function that removes it. Calling the returned
// function more than once is safe. Subscribing to a closed bus returns a no-op.
func (b *Bus) Subscribe(fn func(Notification)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || fn == nil {
		return func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers a notification to every current subscriber synchronously.
// A panicking subscriber is logged and skipped. Publishing on a closed bus returns
// the notification without delivering it.
func (b *Bus) Publish(message string, level Level) Notification {
	n := Notification{
		ID:        shared.GenerateID(),
		Message:   message,
		Level:     level,
		Duration:  DefaultDuration,
		CreatedAt: b.now(),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return n
	}
	fns := make([]func(Notification), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		b.deliver(fn, n)
	}
	return n
}

func (b *Bus) deliver(fn func(Notification), n Notification) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("notification subscriber panicked", "panic", r, "message", n.Message)
		}
	}()
	fn(n)
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops every subscriber. Later publishes are not delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subs = make(map[uint64]func(Notification))
	b.order = nil
}
