package models

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session id is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// ErrStoreUnavailable indicates the session store cannot be reached; the
// service degrades to stateless single-turn answers while it persists.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrIndexUnavailable indicates the vector index cannot serve searches; the
// query path falls back to an ungrounded answer.
var ErrIndexUnavailable = errors.New("vector index unavailable")

// Article is one fetched news item. Immutable once stored; a newer fetch of
// the same URL with a different content hash supersedes it.
type Article struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Feed        string    `json:"feed"`
	PublishedAt time.Time `json:"published_at"`
	Text        string    `json:"text"`
	ContentHash string    `json:"content_hash"`
}

// Chunk is a contiguous span of an article's text with its own embedding.
// Every chunk belongs to exactly one article.
type Chunk struct {
	ID          string    `json:"id"` // sha1(article URL) + "#" + index
	ArticleURL  string    `json:"article_url"`
	Title       string    `json:"title"`
	Feed        string    `json:"feed"`
	PublishedAt time.Time `json:"published_at"`
	ChunkIndex  int       `json:"chunk_index"`
	Text        string    `json:"text"`
	ContentHash string    `json:"content_hash"`
	Vector      []float32 `json:"-"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// RetrievedPassage is a chunk scored and ranked for one specific query.
// Ephemeral, never persisted.
type RetrievedPassage struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// Citation binds a span of generated text to the chunk that justifies it.
// Citations only ever reference chunks from the retrieved set used to build
// the corresponding prompt.
type Citation struct {
	Marker      string    `json:"marker"` // reference marker as emitted, e.g. "S1"
	ChunkID     string    `json:"chunk_id"`
	ArticleURL  string    `json:"article_url"`
	Title       string    `json:"title"`
	Feed        string    `json:"feed"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a session. Appended, never mutated in place.
type Turn struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	Citations []Citation `json:"citations,omitempty"`
	// Grounded is false when the answer was produced without retrieved
	// passages (warm-up or index failure). Never silently omitted.
	Grounded bool `json:"grounded"`
	// Stateless marks answers produced while the session store was
	// unreachable; such turns carry no history context.
	Stateless bool `json:"stateless,omitempty"`
	// Incomplete marks answers cut short by a generation failure.
	Incomplete bool `json:"incomplete,omitempty"`
	// Interrupted marks answers cut short by caller cancellation.
	Interrupted bool `json:"interrupted,omitempty"`
}

// Session is an identified, TTL-bounded conversation.
type Session struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Turns     []Turn    `json:"turns,omitempty"`
}

// FeedStatus tracks the last outcome per configured feed.
type FeedStatus struct {
	Feed        string    `json:"feed"`
	URL         string    `json:"url"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
	Articles    int       `json:"articles"`
	Chunks      int       `json:"chunks"`
}

// IngestionStatus is the aggregate ingestion/readiness snapshot.
type IngestionStatus struct {
	Ready             bool         `json:"ready"`
	InProgress        bool         `json:"in_progress"`
	StartedAt         time.Time    `json:"started_at,omitempty"`
	FinishedAt        time.Time    `json:"finished_at,omitempty"`
	SourcesProcessed  int          `json:"sources_processed"`
	TotalSources      int          `json:"total_sources"`
	ArticlesProcessed int          `json:"articles_processed"`
	ArticlesFailed    int          `json:"articles_failed"`
	ChunksCreated     int          `json:"chunks_created"`
	Feeds             []FeedStatus `json:"feeds"`
}

// Stream event types delivered while an answer is generated.
const (
	EventToken    = "token"
	EventCitation = "citation"
	EventDone     = "done"
	EventError    = "error"
)

// StreamEvent is one element of the ordered, single-consumption event stream
// produced for a chat request.
type StreamEvent struct {
	Type     string    `json:"type"`
	Token    string    `json:"token,omitempty"`
	Citation *Citation `json:"citation,omitempty"`
	Turn     *Turn     `json:"turn,omitempty"`
	Error    string    `json:"error,omitempty"`
}
