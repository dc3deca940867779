package session

import (
	"context"
	"sync"

	"github.com/mohammad-safakhou/newschat/models"
)

// Store is a TTL-bounded store of conversation turns keyed by session id.
// Expiry is lazy: History on an expired or absent id returns an empty
// sequence, not an error, and the id is implicitly re-creatable by Append.
type Store interface {
	// Create allocates a new empty session.
	Create(ctx context.Context) (models.Session, error)
	// Append adds a turn to the session, creating it when absent, and
	// refreshes the TTL. Turns are kept strictly in append order.
	Append(ctx context.Context, sessionID string, turn models.Turn) error
	// History returns the session's turns in append order.
	History(ctx context.Context, sessionID string) ([]models.Turn, error)
	// Clear deletes the session. Clearing an absent id is not an error.
	Clear(ctx context.Context, sessionID string) error
	// List returns the ids of live sessions.
	List(ctx context.Context) ([]string, error)
	// Count returns the number of live sessions.
	Count(ctx context.Context) (int, error)
}

// Locker hands out one mutex per session id so concurrent requests to the
// same session serialize while different sessions proceed in parallel.
// Entries are refcounted and evicted when the last holder unlocks, so the
// table stays bounded by in-flight requests under session churn.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates an empty per-session lock table.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for the given session id, creating it on first
// use, and returns the unlock function.
func (l *Locker) Lock(sessionID string) func() {
	l.mu.Lock()
	e, ok := l.locks[sessionID]
	if !ok {
		e = &lockEntry{}
		l.locks[sessionID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, sessionID)
		}
		l.mu.Unlock()
	}
}
