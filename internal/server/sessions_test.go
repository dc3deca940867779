package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/newschat/internal/session/inmemory"
	"github.com/mohammad-safakhou/newschat/models"
)

func TestSessionsHandlerCreate(t *testing.T) {
	handler := &SessionsHandler{Sessions: inmemory.New(time.Hour)}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if err := handler.create(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var sess models.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected a session id")
	}
}

func TestSessionsHandlerHistoryUnknownID(t *testing.T) {
	handler := &SessionsHandler{Sessions: inmemory.New(time.Hour)}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/history/nope", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("nope")

	if err := handler.history(ctx); err != nil {
		t.Fatalf("history: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown id, got %d", rec.Code)
	}
	var payload struct {
		SessionID string        `json:"session_id"`
		Turns     []models.Turn `json:"turns"`
		Count     int           `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Count != 0 || len(payload.Turns) != 0 {
		t.Fatalf("expected empty history, got %+v", payload)
	}
}

func TestSessionsHandlerClearAndList(t *testing.T) {
	store := inmemory.New(time.Hour)
	handler := &SessionsHandler{Sessions: store}
	e := echo.New()

	sess, _ := store.Create(httptest.NewRequest(http.MethodGet, "/", nil).Context())

	req := httptest.NewRequest(http.MethodDelete, "/api/session/"+sess.ID, nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues(sess.ID)
	if err := handler.clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec = httptest.NewRecorder()
	if err := handler.list(e.NewContext(req, rec)); err != nil {
		t.Fatalf("list: %v", err)
	}
	var payload struct {
		Sessions []string `json:"sessions"`
		Count    int      `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Count != 0 {
		t.Fatalf("cleared session still listed: %+v", payload)
	}
}
