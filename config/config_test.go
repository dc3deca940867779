package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Ingest.ChunkSize != 1000 || cfg.Ingest.ChunkOverlap != 100 {
		t.Fatalf("chunking defaults wrong: %+v", cfg.Ingest)
	}
	if len(cfg.Ingest.Sources) != 5 {
		t.Fatalf("expected 5 default feeds, got %d", len(cfg.Ingest.Sources))
	}
	if cfg.Retrieval.TopK != 3 || cfg.Retrieval.OverfetchFactor != 2 || !cfg.Retrieval.Hybrid {
		t.Fatalf("retrieval defaults wrong: %+v", cfg.Retrieval)
	}
	if cfg.Session.TTL != 24*time.Hour || cfg.Session.Backend != "redis" {
		t.Fatalf("session defaults wrong: %+v", cfg.Session)
	}
	if cfg.Storage.Index.Backend != "memory" || cfg.Storage.Index.Dimensions != 1536 {
		t.Fatalf("index defaults wrong: %+v", cfg.Storage.Index)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"ingest": {"chunk_size": 500, "chunk_overlap": 50},
		"retrieval": {"top_k": 5},
		"session": {"backend": "inmemory", "ttl": "1h"}
	}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Ingest.ChunkSize != 500 || cfg.Ingest.ChunkOverlap != 50 {
		t.Fatalf("chunking overrides lost: %+v", cfg.Ingest)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Fatalf("top_k override lost: %+v", cfg.Retrieval)
	}
	if cfg.Session.Backend != "inmemory" || cfg.Session.TTL != time.Hour {
		t.Fatalf("session overrides lost: %+v", cfg.Session)
	}
}

func TestLoadConfigRejectsBadChunking(t *testing.T) {
	path := writeConfig(t, `{"ingest": {"chunk_size": 100, "chunk_overlap": 100}}`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("overlap >= chunk_size must fail validation")
	}
}

func TestLoadConfigRejectsUnknownIndexBackend(t *testing.T) {
	path := writeConfig(t, `{"storage": {"index": {"backend": "cassandra"}}}`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("unknown index backend must fail validation")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("NEWSCHAT_RETRIEVAL_TOP_K", "7")
	cfg, err := LoadConfig(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Retrieval.TopK != 7 {
		t.Fatalf("env override lost: %+v", cfg.Retrieval)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{User: "u", Password: "p", Host: "db", DBName: "news"}
	want := "postgres://u:p@db:5432/news?sslmode=disable"
	if got := p.DSN(); got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
	p.URL = "postgres://explicit"
	if got := p.DSN(); got != "postgres://explicit" {
		t.Fatalf("explicit url ignored: %q", got)
	}
}
