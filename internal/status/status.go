package status

import (
	"context"
	"sync"
	"time"

	"github.com/mohammad-safakhou/newschat/models"
)

// IngestionReporter exposes the ingestion pipeline's readiness snapshot.
type IngestionReporter interface {
	Status(ctx context.Context) models.IngestionStatus
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Count(ctx context.Context) (int, error)
}

// ChunkCounter reports the number of indexed chunks.
type ChunkCounter interface {
	Count(ctx context.Context) (int, error)
}

// Snapshot is the aggregate service status served to operators.
type Snapshot struct {
	Status        string                 `json:"status"` // ok, warming_up or degraded
	Uptime        string                 `json:"uptime"`
	StartedAt     time.Time              `json:"started_at"`
	Ingestion     models.IngestionStatus `json:"ingestion"`
	IndexedChunks int                    `json:"indexed_chunks"`
	ActiveChats   int                    `json:"active_chats"`
	// SessionStoreDown is raised while chat runs in stateless degraded mode.
	SessionStoreDown bool `json:"session_store_down"`
}

// Tracker aggregates component health into one snapshot.
type Tracker struct {
	ingestion IngestionReporter
	sessions  SessionCounter
	chunks    ChunkCounter
	startedAt time.Time

	mu        sync.Mutex
	storeDown bool
}

// NewTracker builds a status tracker; sessions and chunks may be nil when a
// backend is not wired.
func NewTracker(ingestion IngestionReporter, sessions SessionCounter, chunks ChunkCounter) *Tracker {
	return &Tracker{
		ingestion: ingestion,
		sessions:  sessions,
		chunks:    chunks,
		startedAt: time.Now(),
	}
}

// SetSessionStoreDown flips the degraded-mode flag; the chat pipeline calls
// this as it observes the store.
func (t *Tracker) SetSessionStoreDown(down bool) {
	t.mu.Lock()
	t.storeDown = down
	t.mu.Unlock()
}

// Snapshot gathers the current aggregate status. Component lookup failures
// degrade the snapshot instead of failing it.
func (t *Tracker) Snapshot(ctx context.Context) Snapshot {
	t.mu.Lock()
	storeDown := t.storeDown
	t.mu.Unlock()

	s := Snapshot{
		StartedAt:        t.startedAt,
		Uptime:           time.Since(t.startedAt).Round(time.Second).String(),
		SessionStoreDown: storeDown,
	}
	if t.ingestion != nil {
		s.Ingestion = t.ingestion.Status(ctx)
	}
	if t.chunks != nil {
		if n, err := t.chunks.Count(ctx); err == nil {
			s.IndexedChunks = n
		}
	}
	if t.sessions != nil {
		if n, err := t.sessions.Count(ctx); err == nil {
			s.ActiveChats = n
		} else {
			storeDown = true
			s.SessionStoreDown = true
		}
	}

	switch {
	case storeDown:
		s.Status = "degraded"
	case !s.Ingestion.Ready:
		s.Status = "warming_up"
	default:
		s.Status = "ok"
	}
	return s
}
