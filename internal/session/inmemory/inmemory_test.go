package inmemory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/newschat/models"
)

func TestAppendOrder(t *testing.T) {
	s := New(time.Hour)
	ctx := context.Background()
	sess, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 5; i++ {
		turn := models.Turn{ID: fmt.Sprintf("t%d", i), Role: models.RoleUser, Content: fmt.Sprintf("m%d", i)}
		if err := s.Append(ctx, sess.ID, turn); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	turns, err := s.History(ctx, sess.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 5 {
		t.Fatalf("expected 5 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.ID != fmt.Sprintf("t%d", i) {
			t.Fatalf("turn %d out of order: %s", i, turn.ID)
		}
	}
}

func TestHistoryAbsentSession(t *testing.T) {
	s := New(time.Hour)
	turns, err := s.History(context.Background(), "nope")
	if err != nil {
		t.Fatalf("History on absent id must not error: %v", err)
	}
	if turns != nil {
		t.Fatalf("expected empty history, got %v", turns)
	}
}

func TestTTLExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := New(time.Hour).WithClock(clock)
	ctx := context.Background()
	sess, _ := s.Create(ctx)
	if err := s.Append(ctx, sess.ID, models.Turn{ID: "t0", Role: models.RoleUser}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	now = now.Add(2 * time.Hour)
	turns, err := s.History(ctx, sess.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expired session should be empty, got %d turns", len(turns))
	}
	n, _ := s.Count(ctx)
	if n != 0 {
		t.Fatalf("expired session still counted: %d", n)
	}
}

func TestAppendRefreshesTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := New(time.Hour).WithClock(clock)
	ctx := context.Background()
	sess, _ := s.Create(ctx)

	now = now.Add(50 * time.Minute)
	if err := s.Append(ctx, sess.ID, models.Turn{ID: "t0", Role: models.RoleUser}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Past the original expiry but within the refreshed window.
	now = now.Add(50 * time.Minute)
	turns, _ := s.History(ctx, sess.ID)
	if len(turns) != 1 {
		t.Fatalf("append should refresh TTL, got %d turns", len(turns))
	}
}

func TestConcurrentAppendsDifferentSessions(t *testing.T) {
	s := New(time.Hour)
	ctx := context.Background()
	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		sess, _ := s.Create(ctx)
		ids[i] = sess.ID
	}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = s.Append(ctx, id, models.Turn{ID: fmt.Sprintf("%s-%d", id, i), Role: models.RoleUser})
			}
		}(id)
	}
	wg.Wait()
	for _, id := range ids {
		turns, _ := s.History(ctx, id)
		if len(turns) != 20 {
			t.Fatalf("session %s lost turns: %d", id, len(turns))
		}
	}
}

func TestClear(t *testing.T) {
	s := New(time.Hour)
	ctx := context.Background()
	sess, _ := s.Create(ctx)
	if err := s.Clear(ctx, sess.ID); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := s.Clear(ctx, sess.ID); err != nil {
		t.Fatalf("clearing absent id must not error: %v", err)
	}
	turns, _ := s.History(ctx, sess.ID)
	if turns != nil {
		t.Fatalf("cleared session should be empty, got %v", turns)
	}
}
