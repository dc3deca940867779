package index

import (
	"context"

	"github.com/mohammad-safakhou/newschat/models"
)

// Match is one similarity search hit.
type Match struct {
	Chunk models.Chunk
	Score float64
	Rank  int
}

// Index stores chunk embeddings and answers top-k similarity queries.
// Searches observe a consistent snapshot: a chunk whose upsert is only
// partially applied is never returned. Searching an empty index yields an
// empty result, not an error.
type Index interface {
	// Upsert inserts or replaces chunks keyed by chunk id. Last writer wins.
	Upsert(ctx context.Context, chunks []models.Chunk) error
	// ReplaceArticle atomically swaps all chunks of one article: either the
	// new chunk set is fully visible or the prior version remains untouched.
	ReplaceArticle(ctx context.Context, articleURL string, chunks []models.Chunk) error
	// Delete removes a chunk by id. Deleting an absent id is not an error.
	Delete(ctx context.Context, chunkID string) error
	// Search returns up to k chunks ordered by descending similarity.
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
	// HasArticle reports whether the article is already stored with the
	// given content hash (ingestion dedup).
	HasArticle(ctx context.Context, articleURL, contentHash string) (bool, error)
	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)
}

// KeywordSearcher is implemented by indexes that can also answer keyword
// queries, enabling hybrid retrieval.
type KeywordSearcher interface {
	KeywordSearch(ctx context.Context, query string, k int) ([]Match, error)
}
