package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/mohammad-safakhou/newschat/config"
	"github.com/mohammad-safakhou/newschat/internal/index"
	"github.com/mohammad-safakhou/newschat/models"
)

// Embedder is the slice of the LLM provider the ingestor needs.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Ingestor pulls articles from the configured feeds, chunks and embeds new
// or changed ones, and upserts them into the vector index. Cycles are safe
// to invoke repeatedly and run concurrently with query traffic.
type Ingestor struct {
	fetcher  FeedFetcher
	embedder Embedder
	idx      index.Index
	cfg      config.IngestConfig
	logger   *log.Logger

	mu     sync.Mutex
	status models.IngestionStatus
	feeds  map[string]*models.FeedStatus
}

// New builds an ingestor over the given fetcher, embedder and index.
func New(fetcher FeedFetcher, embedder Embedder, idx index.Index, cfg config.IngestConfig, logger *log.Logger) *Ingestor {
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	feeds := make(map[string]*models.FeedStatus, len(cfg.Sources))
	for _, s := range cfg.Sources {
		feeds[s.URL] = &models.FeedStatus{Feed: s.Title, URL: s.URL}
	}
	return &Ingestor{
		fetcher:  fetcher,
		embedder: embedder,
		idx:      idx,
		cfg:      cfg,
		logger:   logger,
		status:   models.IngestionStatus{TotalSources: len(cfg.Sources)},
		feeds:    feeds,
	}
}

// Run executes ingestion cycles until ctx is cancelled, either on the
// configured cron spec or at the fixed interval.
func (g *Ingestor) Run(ctx context.Context) {
	for {
		if err := g.RunCycle(ctx); err != nil {
			g.logger.Printf("cycle failed: %v", err)
		}
		wait := g.cfg.Interval
		if g.cfg.CronSpec != "" {
			if expr, err := cronexpr.Parse(g.cfg.CronSpec); err == nil {
				wait = time.Until(expr.Next(time.Now()))
			} else {
				g.logger.Printf("invalid cron spec %q, falling back to interval: %v", g.cfg.CronSpec, err)
			}
		}
		if wait <= 0 {
			wait = 30 * time.Minute
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// RunCycle fetches every configured feed once. A failure on one feed is
// recorded in its status and never aborts the others.
func (g *Ingestor) RunCycle(ctx context.Context) error {
	g.mu.Lock()
	if g.status.InProgress {
		g.mu.Unlock()
		return fmt.Errorf("ingestion cycle already in progress")
	}
	g.status.InProgress = true
	g.status.StartedAt = time.Now()
	g.status.SourcesProcessed = 0
	g.mu.Unlock()

	cyclesTotal.Inc()
	g.logger.Printf("starting ingestion cycle over %d feeds", len(g.cfg.Sources))

	var wg sync.WaitGroup
	for _, source := range g.cfg.Sources {
		wg.Add(1)
		go func(source config.FeedSource) {
			defer wg.Done()
			feedCtx := ctx
			if g.cfg.FeedTimeout > 0 {
				var cancel context.CancelFunc
				feedCtx, cancel = context.WithTimeout(ctx, g.cfg.FeedTimeout)
				defer cancel()
			}
			g.ingestFeed(feedCtx, source)
			g.mu.Lock()
			g.status.SourcesProcessed++
			g.mu.Unlock()
		}(source)
	}
	wg.Wait()

	g.mu.Lock()
	g.status.InProgress = false
	g.status.FinishedAt = time.Now()
	g.mu.Unlock()
	g.logger.Printf("ingestion cycle finished in %s", time.Since(g.statusSnapshot().StartedAt).Round(time.Second))
	return ctx.Err()
}

func (g *Ingestor) ingestFeed(ctx context.Context, source config.FeedSource) {
	articles, err := g.fetcher.Fetch(ctx, source)
	if err != nil {
		feedErrors.WithLabelValues(source.Title).Inc()
		g.recordFeedError(source, err)
		g.logger.Printf("feed %s failed: %v", source.Title, err)
		return
	}

	var ingested, chunksMade int
	for _, article := range articles {
		if ctx.Err() != nil {
			g.recordFeedError(source, ctx.Err())
			return
		}
		n, err := g.ingestArticle(ctx, article)
		if err != nil {
			articlesFailed.Inc()
			g.mu.Lock()
			g.status.ArticlesFailed++
			g.mu.Unlock()
			g.logger.Printf("article %s failed: %v", article.URL, err)
			continue
		}
		ingested++
		chunksMade += n
	}

	g.mu.Lock()
	fs := g.feeds[source.URL]
	fs.LastSuccess = time.Now()
	fs.LastError = ""
	fs.Articles += ingested
	fs.Chunks += chunksMade
	g.status.ArticlesProcessed += ingested
	g.status.ChunksCreated += chunksMade
	g.mu.Unlock()
}

// ingestArticle chunks, embeds and upserts one article. The article's chunks
// are either fully replaced or the prior version remains untouched. Returns
// the number of chunks written; 0 with nil error means the article was
// already current.
func (g *Ingestor) ingestArticle(ctx context.Context, article models.Article) (int, error) {
	text := strings.TrimSpace(article.Text)
	if text == "" {
		return 0, nil
	}
	current, err := g.idx.HasArticle(ctx, article.URL, article.ContentHash)
	if err != nil {
		return 0, fmt.Errorf("dedup check: %w", err)
	}
	if current {
		return 0, nil
	}

	parts := makeChunks(text, g.cfg.ChunkSize, g.cfg.ChunkOverlap)
	urlHash := sha1Hex(article.URL)
	now := time.Now()
	chunks := make([]models.Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, models.Chunk{
			ID:          fmt.Sprintf("%s#%03d", urlHash, i),
			ArticleURL:  article.URL,
			Title:       article.Title,
			Feed:        article.Feed,
			PublishedAt: article.PublishedAt,
			ChunkIndex:  i,
			Text:        part,
			ContentHash: article.ContentHash,
			IngestedAt:  now,
		})
	}

	batch := g.cfg.EmbedBatchSize
	if batch <= 0 {
		batch = 32
	}
	for start := 0; start < len(chunks); start += batch {
		end := start + batch
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := g.embedder.CreateEmbedding(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed batch: %w", err)
		}
		if len(vecs) != len(texts) {
			return 0, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vecs), len(texts))
		}
		for i := range vecs {
			chunks[start+i].Vector = vecs[i]
		}
	}

	if err := g.idx.ReplaceArticle(ctx, article.URL, chunks); err != nil {
		return 0, fmt.Errorf("replace article chunks: %w", err)
	}
	articlesIngested.Inc()
	chunksCreated.Add(float64(len(chunks)))
	return len(chunks), nil
}

func (g *Ingestor) recordFeedError(source config.FeedSource, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fs := g.feeds[source.URL]
	if fs == nil {
		fs = &models.FeedStatus{Feed: source.Title, URL: source.URL}
		g.feeds[source.URL] = fs
	}
	fs.LastError = err.Error()
	fs.LastErrorAt = time.Now()
}

// Status returns a snapshot of ingestion progress. Ready is true once at
// least one feed has succeeded and the index holds chunks.
func (g *Ingestor) Status(ctx context.Context) models.IngestionStatus {
	st := g.statusSnapshot()
	count, err := g.idx.Count(ctx)
	if err != nil {
		count = 0
	}
	anySuccess := false
	for _, fs := range st.Feeds {
		if !fs.LastSuccess.IsZero() {
			anySuccess = true
			break
		}
	}
	st.Ready = anySuccess && count > 0
	return st
}

func (g *Ingestor) statusSnapshot() models.IngestionStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.status
	st.Feeds = make([]models.FeedStatus, 0, len(g.cfg.Sources))
	for _, s := range g.cfg.Sources {
		if fs := g.feeds[s.URL]; fs != nil {
			st.Feeds = append(st.Feeds, *fs)
		}
	}
	return st
}

// makeChunks splits text into approx-sized chunks with bounded overlap.
// Sizes are measured in runes so multibyte text never splits mid-character.
func makeChunks(text string, approx, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= approx {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(runes); {
		end := start + approx
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}
