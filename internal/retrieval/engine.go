package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/newschat/config"
	"github.com/mohammad-safakhou/newschat/internal/index"
	"github.com/mohammad-safakhou/newschat/models"
)

const rrfK = 60 // reciprocal-rank-fusion constant

// Embedder is the slice of the LLM provider the engine needs.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Engine turns a query into an ordered, article-deduplicated set of
// grounding passages.
type Engine struct {
	embedder Embedder
	idx      index.Index
	cfg      config.RetrievalConfig
	logger   *log.Logger
}

// NewEngine builds a retrieval engine over the given embedder and index.
func NewEngine(embedder Embedder, idx index.Index, cfg config.RetrievalConfig, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[RETRIEVE] ", log.LstdFlags)
	}
	return &Engine{embedder: embedder, idx: idx, cfg: cfg, logger: logger}
}

// Retrieve embeds the query, searches the index with an over-fetch factor,
// dedups by source article and returns at most k passages ordered by
// descending score, ties broken by more recent publish time. A cold index
// yields an empty list, signalling the caller to answer without grounding.
func (e *Engine) Retrieve(ctx context.Context, query string, k int, history []models.Turn) ([]models.RetrievedPassage, error) {
	if k <= 0 {
		k = e.cfg.TopK
	}
	count, err := e.idx.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	if count == 0 {
		return nil, nil
	}

	// The contextualized text is used only for retrieval, never shown to
	// the user.
	embedText := contextualize(query, history, e.cfg.HistoryWindow)
	vecs, err := e.embedder.CreateEmbedding(ctx, []string{embedText})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: provider returned no vectors")
	}

	overfetch := k * e.cfg.OverfetchFactor
	if overfetch < k {
		overfetch = k
	}
	matches, err := e.idx.Search(ctx, vecs[0], overfetch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}

	if e.cfg.Hybrid {
		if ks, ok := e.idx.(index.KeywordSearcher); ok {
			keyword, err := ks.KeywordSearch(ctx, query, overfetch)
			if err != nil {
				// Keyword search is best-effort; vector results stand
				// on their own.
				e.logger.Printf("keyword search failed: %v", err)
			} else if len(keyword) > 0 {
				matches = fuseRRF(matches, keyword)
			}
		}
	}

	return rankAndDedup(matches, k), nil
}

// contextualize appends recent user turns so follow-up questions resolve
// pronoun/topic continuity at embedding time.
func contextualize(query string, history []models.Turn, window int) string {
	if window <= 0 || len(history) == 0 {
		return query
	}
	start := len(history) - window
	if start < 0 {
		start = 0
	}
	var prior []string
	for _, turn := range history[start:] {
		if turn.Role == models.RoleUser && strings.TrimSpace(turn.Content) != "" {
			prior = append(prior, turn.Content)
		}
	}
	if len(prior) == 0 {
		return query
	}
	return strings.Join(prior, "\n") + "\n" + query
}

// fuseRRF merges two ranked lists with reciprocal-rank fusion.
func fuseRRF(a, b []index.Match) []index.Match {
	type agg struct {
		match index.Match
		score float64
	}
	m := map[string]*agg{}
	add := func(list []index.Match) {
		for _, h := range list {
			x, ok := m[h.Chunk.ID]
			if !ok {
				x = &agg{match: h}
				m[h.Chunk.ID] = x
			}
			x.score += 1.0 / float64(rrfK+h.Rank)
		}
	}
	add(a)
	add(b)
	out := make([]index.Match, 0, len(m))
	for _, v := range m {
		v.match.Score = v.score
		out = append(out, v.match)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// rankAndDedup keeps the best chunk per source article so no single article
// dominates, then orders by descending score with publish-time tie-break.
func rankAndDedup(matches []index.Match, k int) []models.RetrievedPassage {
	best := map[string]index.Match{}
	for _, m := range matches {
		cur, ok := best[m.Chunk.ArticleURL]
		if !ok || m.Score > cur.Score {
			best[m.Chunk.ArticleURL] = m
		}
	}
	deduped := make([]index.Match, 0, len(best))
	for _, m := range best {
		deduped = append(deduped, m)
	}
	sort.Slice(deduped, func(i, j int) bool {
		if deduped[i].Score != deduped[j].Score {
			return deduped[i].Score > deduped[j].Score
		}
		return deduped[i].Chunk.PublishedAt.After(deduped[j].Chunk.PublishedAt)
	})
	if len(deduped) > k {
		deduped = deduped[:k]
	}
	out := make([]models.RetrievedPassage, 0, len(deduped))
	for i, m := range deduped {
		out = append(out, models.RetrievedPassage{Chunk: m.Chunk, Score: m.Score, Rank: i + 1})
	}
	return out
}
