// Package auth manages the signed-in session and broadcasts auth-state changes.
//
// [Manager] signs users in with the OAuth2 password grant against the backend, persists the
// session in the local store, and refreshes access tokens with the refresh_token grant.
// Every transition is published on an [Observer] so the synchronized sets can resync from the
// backend on sign-in and fall back to their local copy on sign-out.
package auth

import (
	"context"
	"sync"
)

type EventType int

const (
	SignedOut EventType = iota
	SignedIn
)

func (t EventType) String() string {
	if t == SignedIn {
		return "signed_in"
	}
	return "signed_out"
}

// Event is an auth-state change. UserID is empty for [SignedOut].
type Event struct {
	Type   EventType
	UserID string
}

func SignedInEvent(userID string) Event { return Event{Type: SignedIn, UserID: userID} }
func SignedOutEvent() Event             { return Event{Type: SignedOut} }

type Handler func(ctx context.Context, e Event)

// Observer fans auth events out to subscribers, in subscription order, on the publishing goroutine.
type Observer struct {
	mu       sync.Mutex
	nextID   int
	order    []int
	handlers map[int]Handler
	last     *Event
}

func NewObserver() *Observer {
	return &Observer{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it. Calling it twice is harmless.
func (o *Observer) Subscribe(h Handler) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.handlers[id] = h
	o.order = append(o.order, id)
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.handlers, id)
			for i, v := range o.order {
				if v == id {
					o.order = append(o.order[:i], o.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers e to every current subscriber and records it as the latest state.
func (o *Observer) Publish(ctx context.Context, e Event) {
	o.mu.Lock()
	o.last = &e
	handlers := make([]Handler, 0, len(o.order))
	for _, id := range o.order {
		handlers = append(handlers, o.handlers[id])
	}
	o.mu.Unlock()

	for _, h := range handlers {
		h(ctx, e)
	}
}

// Last returns the most recently published event.
func (o *Observer) Last() (Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Event{}, false
	}
	return *o.last, true
}
