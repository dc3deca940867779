package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohammad-safakhou/newschat/config"
	"github.com/mohammad-safakhou/newschat/internal/index"
	"github.com/mohammad-safakhou/newschat/models"
)

type stubEmbedder struct {
	gotTexts []string
	err      error
}

func (e *stubEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	e.gotTexts = texts
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type stubIndex struct {
	count      int
	matches    []index.Match
	keyword    []index.Match
	keywordErr error
	searchErr  error
	gotLimit   int
}

func (s *stubIndex) Upsert(ctx context.Context, chunks []models.Chunk) error { return nil }
func (s *stubIndex) ReplaceArticle(ctx context.Context, articleURL string, chunks []models.Chunk) error {
	return nil
}
func (s *stubIndex) Delete(ctx context.Context, chunkID string) error { return nil }
func (s *stubIndex) Search(ctx context.Context, vector []float32, limit int) ([]index.Match, error) {
	s.gotLimit = limit
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if limit > len(s.matches) {
		limit = len(s.matches)
	}
	return s.matches[:limit], nil
}
func (s *stubIndex) KeywordSearch(ctx context.Context, query string, limit int) ([]index.Match, error) {
	if s.keywordErr != nil {
		return nil, s.keywordErr
	}
	return s.keyword, nil
}
func (s *stubIndex) HasArticle(ctx context.Context, articleURL, contentHash string) (bool, error) {
	return false, nil
}
func (s *stubIndex) Count(ctx context.Context) (int, error) { return s.count, nil }

func match(rank int, id, url string, score float64, published time.Time) index.Match {
	return index.Match{
		Chunk: models.Chunk{ID: id, ArticleURL: url, PublishedAt: published},
		Score: score,
		Rank:  rank,
	}
}

func engineConfig() config.RetrievalConfig {
	return config.RetrievalConfig{TopK: 3, OverfetchFactor: 2, Hybrid: false, HistoryWindow: 10}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	e := NewEngine(&stubEmbedder{}, &stubIndex{count: 0}, engineConfig(), nil)
	got, err := e.Retrieve(context.Background(), "q", 3, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got != nil {
		t.Fatalf("cold index must yield no passages, got %v", got)
	}
}

func TestRetrieveOrderingAndDedup(t *testing.T) {
	day := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	idx := &stubIndex{count: 10, matches: []index.Match{
		match(1, "a#000", "https://example.com/a", 0.95, day),
		match(2, "a#001", "https://example.com/a", 0.90, day), // same article, must be dropped
		match(3, "b#000", "https://example.com/b", 0.85, day),
		match(4, "c#000", "https://example.com/c", 0.80, day),
		match(5, "d#000", "https://example.com/d", 0.75, day),
	}}
	e := NewEngine(&stubEmbedder{}, idx, engineConfig(), nil)

	got, err := e.Retrieve(context.Background(), "q", 3, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if idx.gotLimit != 6 {
		t.Fatalf("overfetch limit = %d, want k*factor = 6", idx.gotLimit)
	}
	if len(got) != 3 {
		t.Fatalf("got %d passages", len(got))
	}
	wantIDs := []string{"a#000", "b#000", "c#000"}
	for i, p := range got {
		if p.Chunk.ID != wantIDs[i] {
			t.Fatalf("passage %d = %s, want %s", i, p.Chunk.ID, wantIDs[i])
		}
		if p.Rank != i+1 {
			t.Fatalf("passage %d rank = %d", i, p.Rank)
		}
	}
	seen := map[string]bool{}
	for _, p := range got {
		if seen[p.Chunk.ArticleURL] {
			t.Fatalf("two passages share article %s", p.Chunk.ArticleURL)
		}
		seen[p.Chunk.ArticleURL] = true
	}
}

func TestRetrieveTieBreakByRecency(t *testing.T) {
	older := time.Date(2025, 5, 18, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	idx := &stubIndex{count: 2, matches: []index.Match{
		match(1, "old#000", "https://example.com/old", 0.8, older),
		match(2, "new#000", "https://example.com/new", 0.8, newer),
	}}
	e := NewEngine(&stubEmbedder{}, idx, engineConfig(), nil)

	got, err := e.Retrieve(context.Background(), "q", 2, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got[0].Chunk.ID != "new#000" {
		t.Fatalf("equal scores must prefer newer article, got %s first", got[0].Chunk.ID)
	}
}

func TestRetrieveHybridFusesKeywordHits(t *testing.T) {
	day := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	idx := &stubIndex{
		count: 4,
		matches: []index.Match{
			match(1, "a#000", "https://example.com/a", 0.9, day),
			match(2, "b#000", "https://example.com/b", 0.8, day),
		},
		keyword: []index.Match{
			match(1, "c#000", "https://example.com/c", 2.0, day),
			match(2, "a#000", "https://example.com/a", 1.0, day),
		},
	}
	cfg := engineConfig()
	cfg.Hybrid = true
	e := NewEngine(&stubEmbedder{}, idx, cfg, nil)

	got, err := e.Retrieve(context.Background(), "q", 3, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	// a is rank 1 in one list and rank 2 in the other, so it fuses highest.
	if got[0].Chunk.ID != "a#000" {
		t.Fatalf("fusion order wrong, first = %s", got[0].Chunk.ID)
	}
	ids := map[string]bool{}
	for _, p := range got {
		ids[p.Chunk.ID] = true
	}
	if !ids["c#000"] {
		t.Fatalf("keyword-only hit lost in fusion: %v", ids)
	}
}

func TestRetrieveKeywordFailureIsBestEffort(t *testing.T) {
	day := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	idx := &stubIndex{
		count:      1,
		matches:    []index.Match{match(1, "a#000", "https://example.com/a", 0.9, day)},
		keywordErr: errors.New("bleve unavailable"),
	}
	cfg := engineConfig()
	cfg.Hybrid = true
	e := NewEngine(&stubEmbedder{}, idx, cfg, nil)

	got, err := e.Retrieve(context.Background(), "q", 3, nil)
	if err != nil {
		t.Fatalf("keyword failure must not fail retrieval: %v", err)
	}
	if len(got) != 1 || got[0].Chunk.ID != "a#000" {
		t.Fatalf("vector results must stand alone: %v", got)
	}
}

func TestRetrieveContextualizesWithUserHistory(t *testing.T) {
	emb := &stubEmbedder{}
	idx := &stubIndex{count: 1, matches: []index.Match{
		match(1, "a#000", "https://example.com/a", 0.9, time.Now()),
	}}
	e := NewEngine(emb, idx, engineConfig(), nil)

	history := []models.Turn{
		{Role: models.RoleUser, Content: "what did the central bank do?"},
		{Role: models.RoleAssistant, Content: "it raised rates"},
	}
	if _, err := e.Retrieve(context.Background(), "why?", 1, history); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(emb.gotTexts) != 1 {
		t.Fatalf("embedded %d texts", len(emb.gotTexts))
	}
	want := "what did the central bank do?\nwhy?"
	if emb.gotTexts[0] != want {
		t.Fatalf("contextualized text = %q, want %q", emb.gotTexts[0], want)
	}
}

func TestRetrieveIndexErrorIsUnavailable(t *testing.T) {
	idx := &stubIndex{count: 1, searchErr: errors.New("connection refused")}
	e := NewEngine(&stubEmbedder{}, idx, engineConfig(), nil)
	_, err := e.Retrieve(context.Background(), "q", 3, nil)
	if !errors.Is(err, models.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestFuseRRFRanksSharedHitsFirst(t *testing.T) {
	a := []index.Match{match(1, "x", "u1", 0.9, time.Time{}), match(2, "y", "u2", 0.8, time.Time{})}
	b := []index.Match{match(1, "y", "u2", 3.0, time.Time{})}
	out := fuseRRF(a, b)
	if out[0].Chunk.ID != "y" {
		t.Fatalf("chunk in both lists must fuse first, got %s", out[0].Chunk.ID)
	}
	if out[0].Rank != 1 || out[1].Rank != 2 {
		t.Fatalf("ranks not reassigned: %+v", out)
	}
}
