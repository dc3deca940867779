package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/newschat/models"
)

type entry struct {
	createdAt time.Time
	expiresAt time.Time
	turns     []models.Turn
}

// Store is a map-backed session store with lazy TTL expiry.
type Store struct {
	mu  sync.RWMutex
	ttl time.Duration
	now func() time.Time
	m   map[string]*entry
}

// New builds an in-memory session store with the given TTL.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{ttl: ttl, now: time.Now, m: make(map[string]*entry)}
}

// WithClock overrides the time source, for expiry tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Create(ctx context.Context) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	now := s.now()
	s.m[id] = &entry{createdAt: now, expiresAt: now.Add(s.ttl)}
	return models.Session{ID: id, CreatedAt: now}, nil
}

func (s *Store) Append(ctx context.Context, sessionID string, turn models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e, ok := s.m[sessionID]
	if !ok || now.After(e.expiresAt) {
		e = &entry{createdAt: now}
		s.m[sessionID] = e
	}
	e.turns = append(e.turns, turn)
	e.expiresAt = now.Add(s.ttl)
	return nil
}

func (s *Store) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[sessionID]
	if !ok || s.now().After(e.expiresAt) {
		return nil, nil
	}
	out := make([]models.Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, sessionID)
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	var ids []string
	for id, e := range s.m {
		if now.After(e.expiresAt) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
