package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/newschat/config"
	"github.com/mohammad-safakhou/newschat/internal/helpers"
	"github.com/mohammad-safakhou/newschat/internal/session"
	"github.com/mohammad-safakhou/newschat/models"
	"github.com/mohammad-safakhou/newschat/provider"
)

const groundedSystemPrompt = `You are a news assistant that answers questions about recent news.
Ground every claim ONLY in the numbered passages below. After a claim, cite the passage that
supports it using its marker in square brackets, for example [S1]. If the passages do not
contain enough information for a confident answer, say so explicitly. Never invent markers
that are not listed below.`

const ungroundedSystemPrompt = `You are a news assistant. No news passages are available right
now (the index may still be warming up). Answer from general knowledge, keep it brief, and
state clearly that the answer is not grounded in current news.`

// Generator is the slice of the LLM provider the orchestrator needs.
type Generator interface {
	StreamCompletion(ctx context.Context, messages []provider.Message, fn func(token string) error) error
}

// Retriever produces grounding passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, history []models.Turn) ([]models.RetrievedPassage, error)
}

// Orchestrator drives one chat turn: load history, retrieve grounding,
// stream the generation and bind emitted markers to citations, then persist
// the assistant turn, also on error and cancellation.
type Orchestrator struct {
	generator Generator
	retriever Retriever
	sessions  session.Store
	locks     *session.Locker
	cfg       config.RetrievalConfig
	logger    *log.Logger

	// degraded flips when the session store fails, for status reporting.
	degraded func(bool)
}

// NewOrchestrator wires the orchestrator. degraded may be nil.
func NewOrchestrator(generator Generator, retriever Retriever, sessions session.Store, cfg config.RetrievalConfig, logger *log.Logger, degraded func(bool)) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[CHAT] ", log.LstdFlags)
	}
	if degraded == nil {
		degraded = func(bool) {}
	}
	return &Orchestrator{
		generator: generator,
		retriever: retriever,
		sessions:  sessions,
		locks:     session.NewLocker(),
		cfg:       cfg,
		logger:    logger,
		degraded:  degraded,
	}
}

// Stream answers userText within the session as an ordered, single-consumer
// event stream. The channel closes after the terminal done event. Cancelling
// ctx stops token forwarding but still persists the partial turn, marked
// interrupted.
func (o *Orchestrator) Stream(ctx context.Context, sessionID, userText string) <-chan models.StreamEvent {
	events := make(chan models.StreamEvent, 64)
	go func() {
		defer close(events)
		emit := func(ev models.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		turn := o.generate(ctx, sessionID, userText, emit)
		// The terminal done event waits for a live consumer however slowly
		// it drains; only a dead context skips it.
		select {
		case events <- models.StreamEvent{Type: models.EventDone, Turn: &turn}:
		case <-ctx.Done():
		}
	}()
	return events
}

// Respond answers userText within the session and returns the final turn.
func (o *Orchestrator) Respond(ctx context.Context, sessionID, userText string) (models.Turn, error) {
	if err := ctx.Err(); err != nil {
		return models.Turn{}, err
	}
	turn := o.generate(ctx, sessionID, userText, func(models.StreamEvent) bool { return true })
	return turn, nil
}

// generate runs the full turn pipeline, reporting progress through emit.
// emit returning false means the consumer is gone; generation stops but the
// partial turn is still persisted.
func (o *Orchestrator) generate(ctx context.Context, sessionID, userText string, emit func(models.StreamEvent) bool) models.Turn {
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	// History load; a store failure degrades to stateless single-turn mode.
	stateless := false
	history, err := o.sessions.History(ctx, sessionID)
	if err != nil {
		stateless = true
		o.degraded(true)
		o.logger.Printf("session %s history unavailable, continuing stateless: %v", sessionID, err)
	} else {
		o.degraded(false)
	}

	userTurn := models.Turn{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   userText,
		Timestamp: time.Now(),
	}
	if !stateless {
		if err := o.sessions.Append(ctx, sessionID, userTurn); err != nil {
			stateless = true
			o.degraded(true)
			o.logger.Printf("session %s append failed, continuing stateless: %v", sessionID, err)
		}
	}

	passages, err := o.retriever.Retrieve(ctx, userText, o.cfg.TopK, history)
	if err != nil {
		o.logger.Printf("retrieval failed, answering ungrounded: %v", err)
		passages = nil
	}
	grounded := len(passages) > 0

	messages, byMarker := o.buildPrompt(passages, history, userText)

	scanner := helpers.NewMarkerScanner()
	var answer strings.Builder
	var citations []models.Citation

	streamErr := o.generator.StreamCompletion(ctx, messages, func(token string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		answer.WriteString(token)
		if !emit(models.StreamEvent{Type: models.EventToken, Token: token}) {
			return context.Canceled
		}
		for _, marker := range scanner.Feed(token) {
			p, ok := byMarker[marker]
			if !ok {
				// Never fabricate a citation for a marker outside the
				// retrieved set.
				o.logger.Printf("model emitted unknown marker [%s], ignoring", marker)
				continue
			}
			c := models.Citation{
				Marker:      marker,
				ChunkID:     p.Chunk.ID,
				ArticleURL:  p.Chunk.ArticleURL,
				Title:       p.Chunk.Title,
				Feed:        p.Chunk.Feed,
				PublishedAt: p.Chunk.PublishedAt,
			}
			citations = append(citations, c)
			if !emit(models.StreamEvent{Type: models.EventCitation, Citation: &c}) {
				return context.Canceled
			}
		}
		return nil
	})

	assistant := models.Turn{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   answer.String(),
		Timestamp: time.Now(),
		Citations: citations,
		Grounded:  grounded,
		Stateless: stateless,
	}
	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) || errors.Is(streamErr, context.DeadlineExceeded) || ctx.Err() != nil {
			assistant.Interrupted = true
			o.logger.Printf("session %s stream interrupted after %d bytes", sessionID, answer.Len())
		} else {
			assistant.Incomplete = true
			o.logger.Printf("session %s generation failed: %v", sessionID, streamErr)
			emit(models.StreamEvent{Type: models.EventError, Error: streamErr.Error()})
		}
	}

	// Persist whatever was produced, also after cancellation, so history
	// stays consistent. The request context may already be dead.
	if !stateless {
		persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.sessions.Append(persistCtx, sessionID, assistant); err != nil {
			o.degraded(true)
			o.logger.Printf("session %s persist failed: %v", sessionID, err)
		}
	}
	return assistant
}

// buildPrompt assembles the grounded prompt and returns the marker lookup
// for citation binding.
func (o *Orchestrator) buildPrompt(passages []models.RetrievedPassage, history []models.Turn, userText string) ([]provider.Message, map[string]models.RetrievedPassage) {
	byMarker := make(map[string]models.RetrievedPassage, len(passages))
	var messages []provider.Message

	if len(passages) == 0 {
		messages = append(messages, provider.Message{Role: "system", Content: ungroundedSystemPrompt})
	} else {
		var sb strings.Builder
		sb.WriteString(groundedSystemPrompt)
		sb.WriteString("\n\nPASSAGES:\n")
		for _, p := range passages {
			marker := helpers.PassageLabel(p.Rank)
			byMarker[marker] = p
			sb.WriteString("\n")
			sb.WriteString(helpers.FormatPassage(marker, p))
			sb.WriteString("\n")
		}
		messages = append(messages, provider.Message{Role: "system", Content: sb.String()})
	}

	window := o.cfg.HistoryWindow
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	for _, turn := range history {
		role := "user"
		if turn.Role == models.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, provider.Message{Role: role, Content: turn.Content})
	}
	messages = append(messages, provider.Message{Role: "user", Content: userText})
	return messages, byMarker
}

// SessionCount exposes the live session count for status reporting; a store
// failure reports zero with the error.
func (o *Orchestrator) SessionCount(ctx context.Context) (int, error) {
	n, err := o.sessions.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
