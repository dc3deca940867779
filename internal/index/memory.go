package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/mohammad-safakhou/newschat/models"
)

// Memory is an in-process index holding vectors and chunk metadata, with a
// mem-only bleve index for the keyword half of hybrid retrieval. All reads
// take a consistent snapshot under RWMutex.
type Memory struct {
	mu       sync.RWMutex
	chunks   map[string]models.Chunk // chunk id -> chunk
	articles map[string]string       // article URL -> content hash
	byURL    map[string][]string     // article URL -> chunk ids
	bleve    bleve.Index
}

// bleveDoc is the indexed shape of a chunk.
type bleveDoc struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Feed  string `json:"feed"`
}

// NewMemory creates an empty in-memory index.
func NewMemory() (*Memory, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	return &Memory{
		chunks:   make(map[string]models.Chunk),
		articles: make(map[string]string),
		byURL:    make(map[string][]string),
		bleve:    idx,
	}, nil
}

func (m *Memory) Upsert(ctx context.Context, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.bleve.NewBatch()
	if err := stageIndex(batch, chunks); err != nil {
		return err
	}
	if err := m.bleve.Batch(batch); err != nil {
		return err
	}
	m.applyLocked(chunks)
	return nil
}

// ReplaceArticle stages the whole swap in one bleve batch before mutating
// any map, so a keyword-index failure leaves the prior chunk set fully
// intact.
func (m *Memory) ReplaceArticle(ctx context.Context, articleURL string, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.bleve.NewBatch()
	for _, id := range m.byURL[articleURL] {
		batch.Delete(id)
	}
	if err := stageIndex(batch, chunks); err != nil {
		return err
	}
	if err := m.bleve.Batch(batch); err != nil {
		return err
	}
	for _, id := range m.byURL[articleURL] {
		delete(m.chunks, id)
	}
	delete(m.byURL, articleURL)
	delete(m.articles, articleURL)
	m.applyLocked(chunks)
	return nil
}

func stageIndex(batch *bleve.Batch, chunks []models.Chunk) error {
	for _, c := range chunks {
		if err := batch.Index(c.ID, bleveDoc{Title: c.Title, Text: c.Text, Feed: c.Feed}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) applyLocked(chunks []models.Chunk) {
	for _, c := range chunks {
		if _, exists := m.chunks[c.ID]; !exists {
			m.byURL[c.ArticleURL] = append(m.byURL[c.ArticleURL], c.ID)
		}
		m.chunks[c.ID] = c
		m.articles[c.ArticleURL] = c.ContentHash
	}
}

func (m *Memory) Delete(ctx context.Context, chunkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[chunkID]
	if !ok {
		return nil
	}
	delete(m.chunks, chunkID)
	ids := m.byURL[c.ArticleURL]
	for i, id := range ids {
		if id == chunkID {
			m.byURL[c.ArticleURL] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(m.byURL[c.ArticleURL]) == 0 {
		delete(m.byURL, c.ArticleURL)
		delete(m.articles, c.ArticleURL)
	}
	return m.bleve.Delete(chunkID)
}

func (m *Memory) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.chunks) == 0 {
		return nil, nil
	}
	type scored struct {
		id    string
		score float64
	}
	scoreds := make([]scored, 0, len(m.chunks))
	for id, c := range m.chunks {
		scoreds = append(scoreds, scored{id: id, score: cosine(vector, c.Vector)})
	}
	sort.Slice(scoreds, func(i, j int) bool { return scoreds[i].score > scoreds[j].score })
	if len(scoreds) > k {
		scoreds = scoreds[:k]
	}
	out := make([]Match, 0, len(scoreds))
	for i, sc := range scoreds {
		out = append(out, Match{Chunk: m.chunks[sc.id], Score: sc.score, Rank: i + 1})
	}
	return out, nil
}

func (m *Memory) KeywordSearch(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, k, 0, false)
	res, err := m.bleve.Search(req)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Match
	for i, hit := range res.Hits {
		c, ok := m.chunks[hit.ID]
		if !ok {
			continue
		}
		out = append(out, Match{Chunk: c, Score: hit.Score, Rank: i + 1})
	}
	return out, nil
}

func (m *Memory) HasArticle(ctx context.Context, articleURL, contentHash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.articles[articleURL]
	return ok && h == contentHash, nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
