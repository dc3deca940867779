package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/newschat/models"
)

// Responder is the slice of the chat orchestrator the handler needs.
type Responder interface {
	Respond(ctx context.Context, sessionID, userText string) (models.Turn, error)
	Stream(ctx context.Context, sessionID, userText string) <-chan models.StreamEvent
}

// ChatHandler serves the question-answering endpoints.
type ChatHandler struct {
	Orch    Responder
	Timeout time.Duration
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (r chatRequest) validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("session_id required")
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message required")
	}
	return nil
}

type chatResponse struct {
	SessionID string            `json:"session_id"`
	Answer    string            `json:"answer"`
	Citations []models.Citation `json:"citations"`
	Grounded  bool              `json:"grounded"`
	Stateless bool              `json:"stateless,omitempty"`
	// Incomplete and Interrupted mark answers cut short by a generation
	// failure or caller cancellation; a partial answer is never presented
	// as a complete one.
	Incomplete  bool `json:"incomplete,omitempty"`
	Interrupted bool `json:"interrupted,omitempty"`
}

// Register mounts the chat routes on the API group.
func (h *ChatHandler) Register(g *echo.Group) {
	g.POST("/chat", h.chat)
	g.POST("/chat/stream", h.stream)
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := req.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	turn, err := h.Orch.Respond(ctx, req.SessionID, req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	citations := turn.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	return c.JSON(http.StatusOK, chatResponse{
		SessionID:   req.SessionID,
		Answer:      turn.Content,
		Citations:   citations,
		Grounded:    turn.Grounded,
		Stateless:   turn.Stateless,
		Incomplete:  turn.Incomplete,
		Interrupted: turn.Interrupted,
	})
}

// stream answers over Server-Sent Events: token events as the answer is
// generated, citation events as markers resolve, one terminal done event.
func (h *ChatHandler) stream(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := req.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	ctx := c.Request().Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	for ev := range h.Orch.Stream(ctx, req.SessionID, req.Message) {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(resp.Writer, "data: %s\n\n", payload); err != nil {
			// Client went away; the orchestrator observes ctx and
			// finalizes the turn on its own.
			return nil
		}
		flusher.Flush()
	}
	return nil
}
