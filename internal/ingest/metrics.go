package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newschat_ingest_cycles_total",
		Help: "Ingestion cycles started",
	})
	articlesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newschat_ingest_articles_total",
		Help: "Articles chunked, embedded and upserted into the index",
	})
	articlesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newschat_ingest_articles_failed_total",
		Help: "Articles that failed to embed or upsert",
	})
	chunksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newschat_ingest_chunks_total",
		Help: "Chunks written to the vector index",
	})
	feedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newschat_ingest_feed_errors_total",
		Help: "Feed fetch/parse failures by feed",
	}, []string{"feed"})
)
