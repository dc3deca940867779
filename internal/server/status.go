package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/newschat/internal/status"
	"github.com/mohammad-safakhou/newschat/models"
)

// IngestionRunner triggers and reports ingestion cycles.
type IngestionRunner interface {
	RunCycle(ctx context.Context) error
	Status(ctx context.Context) models.IngestionStatus
}

// StatusHandler serves service status and ingestion control endpoints.
type StatusHandler struct {
	Tracker  *status.Tracker
	Ingestor IngestionRunner
}

// Register mounts the status routes on the API group.
func (h *StatusHandler) Register(g *echo.Group) {
	g.GET("/status", h.status)
	g.GET("/ingest/status", h.ingestStatus)
	g.POST("/ingest/run", h.ingestRun)
}

func (h *StatusHandler) status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Tracker.Snapshot(c.Request().Context()))
}

func (h *StatusHandler) ingestStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Ingestor.Status(c.Request().Context()))
}

// ingestRun kicks off a cycle in the background; a cycle already in flight
// makes this a no-op.
func (h *StatusHandler) ingestRun(c echo.Context) error {
	go func() {
		_ = h.Ingestor.RunCycle(context.Background())
	}()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}
