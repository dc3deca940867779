package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/newschat/internal/session"
	"github.com/mohammad-safakhou/newschat/models"
)

// SessionsHandler exposes session lifecycle endpoints.
type SessionsHandler struct {
	Sessions session.Store
}

// Register mounts the session routes on the API group.
func (h *SessionsHandler) Register(g *echo.Group) {
	g.POST("/session", h.create)
	g.GET("/sessions", h.list)
	g.GET("/history/:id", h.history)
	g.DELETE("/session/:id", h.clear)
}

func (h *SessionsHandler) create(c echo.Context) error {
	sess, err := h.Sessions.Create(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *SessionsHandler) list(c echo.Context) error {
	ids, err := h.Sessions.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sessions": ids, "count": len(ids)})
}

func (h *SessionsHandler) history(c echo.Context) error {
	id := c.Param("id")
	turns, err := h.Sessions.History(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	// An unknown or expired id reads as an empty conversation.
	if turns == nil {
		turns = []models.Turn{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"session_id": id, "turns": turns, "count": len(turns)})
}

func (h *SessionsHandler) clear(c echo.Context) error {
	if err := h.Sessions.Clear(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}
