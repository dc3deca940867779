package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/newschat/config"
	"github.com/mohammad-safakhou/newschat/internal/chat"
	"github.com/mohammad-safakhou/newschat/internal/index"
	"github.com/mohammad-safakhou/newschat/internal/ingest"
	"github.com/mohammad-safakhou/newschat/internal/retrieval"
	"github.com/mohammad-safakhou/newschat/internal/session"
	"github.com/mohammad-safakhou/newschat/internal/session/inmemory"
	redis_session "github.com/mohammad-safakhou/newschat/internal/session/redis"
	"github.com/mohammad-safakhou/newschat/internal/status"
	"github.com/mohammad-safakhou/newschat/provider"
)

// Run wires every component from config and serves the chat API until the
// listener fails or ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}

	var idx index.Index
	switch cfg.Storage.Index.Backend {
	case "postgres":
		if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		pg, err := index.NewPostgres(ctx, cfg.Storage.Postgres.DSN())
		if err != nil {
			return fmt.Errorf("postgres index: %w", err)
		}
		idx = pg
	default:
		mem, err := index.NewMemory()
		if err != nil {
			return fmt.Errorf("memory index: %w", err)
		}
		idx = mem
	}

	var sessions session.Store
	switch cfg.Session.Backend {
	case "inmemory":
		sessions = inmemory.New(cfg.Session.TTL)
	default:
		rdb, err := redis_session.Conn(ctx,
			fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.Timeout)
		if err != nil {
			return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
		}
		sessions = redis_session.New(rdb, cfg.Session.TTL)
	}

	fetcher := ingest.NewRSSFetcher(cfg.Ingest.MaxArticlesPerFeed, cfg.Ingest.FeedTimeout)
	ingestor := ingest.New(fetcher, llm, idx, cfg.Ingest, nil)
	go ingestor.Run(ctx)

	engine := retrieval.NewEngine(llm, idx, cfg.Retrieval, nil)
	tracker := status.NewTracker(ingestor, sessions, indexCounter{idx})
	orch := chat.NewOrchestrator(llm, engine, sessions, cfg.Retrieval, nil, tracker.SetSessionStoreDown)

	api := e.Group("/api")
	(&SessionsHandler{Sessions: sessions}).Register(api)
	(&ChatHandler{Orch: orch, Timeout: cfg.Server.RequestTimeout}).Register(api)
	(&StatusHandler{Tracker: tracker, Ingestor: ingestor}).Register(api)

	if addr == "" {
		addr = cfg.Server.Address
		if addr == "" {
			addr = ":8080"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// indexCounter adapts the index to the status tracker's counter shape.
type indexCounter struct{ idx index.Index }

func (c indexCounter) Count(ctx context.Context) (int, error) { return c.idx.Count(ctx) }
