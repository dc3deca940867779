package status

import (
	"context"
	"errors"
	"testing"

	"github.com/mohammad-safakhou/newschat/models"
)

type stubIngestion struct{ ready bool }

func (s stubIngestion) Status(ctx context.Context) models.IngestionStatus {
	return models.IngestionStatus{Ready: s.ready, ChunksCreated: 42}
}

type stubCounter struct {
	n   int
	err error
}

func (s stubCounter) Count(ctx context.Context) (int, error) { return s.n, s.err }

func TestSnapshotOK(t *testing.T) {
	tr := NewTracker(stubIngestion{ready: true}, stubCounter{n: 3}, stubCounter{n: 120})
	s := tr.Snapshot(context.Background())
	if s.Status != "ok" {
		t.Fatalf("status = %q", s.Status)
	}
	if s.ActiveChats != 3 || s.IndexedChunks != 120 {
		t.Fatalf("counts wrong: %+v", s)
	}
	if !s.Ingestion.Ready {
		t.Fatal("ingestion snapshot not embedded")
	}
}

func TestSnapshotWarmingUp(t *testing.T) {
	tr := NewTracker(stubIngestion{ready: false}, stubCounter{}, stubCounter{})
	if s := tr.Snapshot(context.Background()); s.Status != "warming_up" {
		t.Fatalf("status = %q", s.Status)
	}
}

func TestSnapshotDegradedOnStoreFlag(t *testing.T) {
	tr := NewTracker(stubIngestion{ready: true}, stubCounter{n: 1}, stubCounter{n: 1})
	tr.SetSessionStoreDown(true)
	s := tr.Snapshot(context.Background())
	if s.Status != "degraded" || !s.SessionStoreDown {
		t.Fatalf("snapshot = %+v", s)
	}
}

func TestSnapshotDegradedOnCountError(t *testing.T) {
	tr := NewTracker(stubIngestion{ready: true}, stubCounter{err: errors.New("redis down")}, stubCounter{n: 1})
	s := tr.Snapshot(context.Background())
	if s.Status != "degraded" || !s.SessionStoreDown {
		t.Fatalf("snapshot = %+v", s)
	}
}
