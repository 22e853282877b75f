package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sorvx/Sorvx-main-ai/internal/auth"
	"github.com/sorvx/Sorvx-main-ai/internal/chat"
	"github.com/sorvx/Sorvx-main-ai/internal/transcript"
)

// SSE event types streamed by POST /api/v1/chat.
const (
	eventChunk = "chunk"
	eventTool  = "tool"
	eventDone  = "done"
	eventError = "error"
)

const maxChatBodyBytes = 1 << 20 // 1 MiB

// Orchestrator runs one chat request, streaming through the emitter.
type Orchestrator interface {
	Run(ctx context.Context, req *chat.Request, em chat.Emitter) error
}

// ConversationStore is the transcript access the handlers need.
type ConversationStore interface {
	Get(ctx context.Context, id string) (*transcript.Conversation, error)
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]*transcript.Conversation, error)
}

type chatHandler struct {
	orch   Orchestrator
	store  ConversationStore
	gate   *auth.Gate
	logger *slog.Logger
}

type chatRequest struct {
	ID       string               `json:"id"`
	Messages []transcript.Message `json:"messages"`
}

type chunkPayload struct {
	Text string `json:"text"`
}

type donePayload struct {
	ConversationID string `json:"conversationId"`
	Persisted      bool   `json:"persisted"`
}

// send handles POST /api/v1/chat: authenticates, streams the model's answer
// as SSE, and reports persistence in the final done event.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	userID, err := h.gate.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized", h.logger)
		return
	}

	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", h.logger)
		return
	}

	// Resuming an existing conversation requires owning it. The check races
	// with concurrent saves; last writer wins on the transcript itself.
	if req.ID != "" {
		existing, err := h.store.Get(r.Context(), req.ID)
		switch {
		case err == nil:
			if authErr := h.gate.Authorize(userID, existing.OwnerID); authErr != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized", h.logger)
				return
			}
		case errors.Is(err, transcript.ErrNotFound):
			// New conversation with a client-chosen ID.
		default:
			h.logger.Error("conversation lookup failed", "conversation_id", req.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	em := &sseEmitter{w: w, flusher: flusher}
	runErr := h.orch.Run(r.Context(), &chat.Request{
		ConversationID: req.ID,
		OwnerID:        userID,
		Messages:       req.Messages,
	}, em)

	if runErr != nil {
		switch {
		case errors.Is(runErr, context.Canceled):
			// Client went away; nothing left to tell it.
		default:
			h.logger.Error("chat run failed", "user_id", userID, "error", runErr)
			em.emitError("generation_failed", "the assistant could not complete this request")
		}
	}
}

// deleteChat handles DELETE /api/v1/chat?id=<conversation>.
func (h *chatHandler) deleteChat(w http.ResponseWriter, r *http.Request) {
	userID, err := h.gate.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized", h.logger)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_id", "id query parameter is required", h.logger)
		return
	}

	conv, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, transcript.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		h.logger.Error("conversation lookup failed", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	if authErr := h.gate.Authorize(userID, conv.OwnerID); authErr != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized", h.logger)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil && !errors.Is(err, transcript.ErrNotFound) {
		h.logger.Error("conversation delete failed", "conversation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"}, h.logger)
}

// sseEmitter streams orchestrator output as server-sent events.
type sseEmitter struct {
	w       io.Writer
	flusher http.Flusher
}

func (e *sseEmitter) Chunk(text string) error {
	return writeEvent(e.w, e.flusher, eventChunk, chunkPayload{Text: text})
}

func (e *sseEmitter) Tool(inv transcript.ToolInvocation) error {
	return writeEvent(e.w, e.flusher, eventTool, inv)
}

func (e *sseEmitter) Done(conversationID string, persisted bool) error {
	return writeEvent(e.w, e.flusher, eventDone, donePayload{
		ConversationID: conversationID,
		Persisted:      persisted,
	})
}

func (e *sseEmitter) emitError(code, message string) {
	_ = writeEvent(e.w, e.flusher, eventError, errorPayload{Code: code, Message: message})
}

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n"
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
