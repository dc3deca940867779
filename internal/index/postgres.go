package index

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/mohammad-safakhou/newschat/models"
)

// Postgres stores chunk embeddings in a pgvector column and answers top-k
// queries with the cosine distance operator. Per-article replacement runs in
// a transaction so readers never observe a half-applied write.
type Postgres struct {
	DB *sql.DB
}

// NewPostgres opens a connection pool against the given DSN.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{DB: db}, nil
}

func (p *Postgres) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()
	if err := upsertChunksTx(ctx, tx, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) ReplaceArticle(ctx context.Context, articleURL string, chunks []models.Chunk) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE article_url=$1`, articleURL); err != nil {
		return fmt.Errorf("delete prior chunks: %w", err)
	}
	if err := upsertChunksTx(ctx, tx, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertChunksTx(ctx context.Context, tx *sql.Tx, chunks []models.Chunk) error {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, article_url, title, feed, published_at, chunk_index, content, content_hash, embedding, ingested_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::vector,NOW())
ON CONFLICT (id) DO UPDATE SET
  article_url = EXCLUDED.article_url,
  title = EXCLUDED.title,
  feed = EXCLUDED.feed,
  published_at = EXCLUDED.published_at,
  chunk_index = EXCLUDED.chunk_index,
  content = EXCLUDED.content,
  content_hash = EXCLUDED.content_hash,
  embedding = EXCLUDED.embedding,
  ingested_at = NOW();
`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()
	for _, c := range chunks {
		vectorLiteral, err := encodeVectorLiteral(c.Vector)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		var published sql.NullTime
		if !c.PublishedAt.IsZero() {
			published = sql.NullTime{Time: c.PublishedAt, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.ArticleURL, c.Title, c.Feed, published, c.ChunkIndex, c.Text, c.ContentHash, vectorLiteral); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, chunkID string) error {
	_, err := p.DB.ExecContext(ctx, `DELETE FROM chunks WHERE id=$1`, chunkID)
	return err
}

func (p *Postgres) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	vectorLiteral, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, err
	}
	rows, err := p.DB.QueryContext(ctx, `
SELECT id, article_url, title, feed, published_at, chunk_index, content, content_hash, 1 - (embedding <=> $1::vector) AS score
FROM chunks
ORDER BY embedding <=> $1::vector
LIMIT $2`, vectorLiteral, k)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()
	return scanMatches(rows)
}

// KeywordSearch answers the keyword half of hybrid retrieval with Postgres
// full-text ranking.
func (p *Postgres) KeywordSearch(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := p.DB.QueryContext(ctx, `
SELECT id, article_url, title, feed, published_at, chunk_index, content, content_hash,
       ts_rank(to_tsvector('english', title || ' ' || content), plainto_tsquery('english', $1)) AS score
FROM chunks
WHERE to_tsvector('english', title || ' ' || content) @@ plainto_tsquery('english', $1)
ORDER BY score DESC
LIMIT $2`, query, k)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()
	return scanMatches(rows)
}

func scanMatches(rows *sql.Rows) ([]Match, error) {
	var out []Match
	rank := 0
	for rows.Next() {
		var c models.Chunk
		var published sql.NullTime
		var score float64
		if err := rows.Scan(&c.ID, &c.ArticleURL, &c.Title, &c.Feed, &published, &c.ChunkIndex, &c.Text, &c.ContentHash, &score); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if published.Valid {
			c.PublishedAt = published.Time
		}
		rank++
		out = append(out, Match{Chunk: c, Score: score, Rank: rank})
	}
	return out, rows.Err()
}

func (p *Postgres) HasArticle(ctx context.Context, articleURL, contentHash string) (bool, error) {
	var exists bool
	err := p.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chunks WHERE article_url=$1 AND content_hash=$2)`,
		articleURL, contentHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check article: %w", err)
	}
	return exists, nil
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("embedding vector required")
	}
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]", nil
}
