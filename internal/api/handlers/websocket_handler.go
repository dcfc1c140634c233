package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/hostpilotpro/captain-cortex/internal/cortex"
	"github.com/hostpilotpro/captain-cortex/internal/middleware/validation"
)

type askMessage struct {
	Type           string `json:"type"`
	Question       string `json:"question"`
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId"`
}

// WebSocketHandler streams answers word by word. A client sends
// {"type":"ask",...} and receives a status frame, chunk frames and a
// closing complete or error frame.
type WebSocketHandler struct {
	engine            Engine
	recorder          Recorder
	maxQuestionLength int
	logger            *zap.Logger
}

func NewWebSocketHandler(engine Engine, recorder Recorder, cfg Config) *WebSocketHandler {
	cfg.defaults()
	return &WebSocketHandler{
		engine:            engine,
		recorder:          recorder,
		maxQuestionLength: cfg.MaxQuestionLength,
		logger:            cfg.Logger,
	}
}

// HandleConnection answers one question at a time. Reads run on their own
// goroutine so a client that disconnects mid-answer cancels the engine call.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	h.logger.Info("WebSocket connection established")

	ctx, cancel := context.WithCancel(context.Background())
	messages := make(chan askMessage)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		h.readMessages(ctx, c, messages)
	}()

	defer func() {
		cancel()
		c.Close()
		<-readerDone
		h.logger.Info("WebSocket connection closed")
	}()

	for {
		var msg askMessage
		select {
		case <-ctx.Done():
			return
		case msg = <-messages:
		}

		if msg.Type != "ask" {
			continue
		}

		req := cortex.Request{
			Question:       msg.Question,
			OrganizationID: msg.OrganizationID,
			UserID:         msg.UserID,
		}
		if err := validation.Check(&req, h.maxQuestionLength); err != nil {
			if err := h.sendError(c, err.Error()); err != nil {
				return
			}
			continue
		}

		if err := h.streamResponse(ctx, c, req); err != nil {
			var writeErr *writeError
			if errors.As(err, &writeErr) {
				h.logger.Error("Failed to write WebSocket message", zap.Error(err))
				return
			}
			if ctx.Err() != nil {
				h.logger.Info("Client left before the answer was ready", zap.Error(err))
				return
			}
			h.logger.Error("Failed to stream response", zap.Error(err))
			if err := h.sendError(c, "Failed to process question"); err != nil {
				return
			}
		}
	}
}

// readMessages forwards decoded frames until the connection fails or ctx ends.
func (h *WebSocketHandler) readMessages(ctx context.Context, c *websocket.Conn, out chan<- askMessage) {
	for {
		var msg askMessage
		if err := c.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

func (h *WebSocketHandler) streamResponse(ctx context.Context, c *websocket.Conn, req cortex.Request) error {
	if err := h.sendChunk(c, "status", "Processing question..."); err != nil {
		return &writeError{err}
	}

	resp, err := h.engine.ProcessQuestion(ctx, req)
	if err != nil {
		return err
	}

	words := splitIntoWords(resp.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return &writeError{err}
		}
	}

	var id string
	if h.recorder != nil {
		if id, err = h.recorder.Record(ctx, req, resp); err != nil {
			h.logger.Warn("Failed to record question", zap.Error(err))
		}
	}

	if err := h.sendComplete(c, id, resp); err != nil {
		return &writeError{err}
	}
	return nil
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, id string, resp *cortex.Response) error {
	msg := map[string]interface{}{
		"type":       "complete",
		"id":         id,
		"intent":     resp.Intent,
		"confidence": resp.Confidence,
		"sources":    resp.Sources,
		"cached":     resp.Cached,
		"latency":    resp.Latency,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) error {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	return c.WriteJSON(msg)
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := []rune{}

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if len(currentWord) > 0 {
				words = append(words, string(currentWord))
				currentWord = currentWord[:0]
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord = append(currentWord, char)
		}
	}

	if len(currentWord) > 0 {
		words = append(words, string(currentWord))
	}

	return words
}
