package api

import (
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/sorvx/Sorvx-main-ai/internal/transcript"
)

type historyEntry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  int       `json:"messageCount"`
	Preview   string    `json:"preview"`
}

const previewLimit = 120

// history handles GET /api/v1/history: the caller's conversations, newest
// first, as lightweight summaries.
func (h *chatHandler) history(w http.ResponseWriter, r *http.Request) {
	userID, err := h.gate.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized", h.logger)
		return
	}

	convs, err := h.store.ListByOwner(r.Context(), userID)
	if err != nil {
		h.logger.Error("history lookup failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	entries := make([]historyEntry, 0, len(convs))
	for _, c := range convs {
		entries = append(entries, historyEntry{
			ID:        c.ID,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
			Messages:  len(c.Messages),
			Preview:   preview(c.Messages),
		})
	}

	writeJSON(w, http.StatusOK, entries, h.logger)
}

// preview returns the first user message trimmed to a display length,
// cutting on a rune boundary so multi-byte characters stay intact.
func preview(messages []transcript.Message) string {
	for _, m := range messages {
		if m.Role != transcript.RoleUser || m.Content == "" {
			continue
		}
		if len(m.Content) <= previewLimit {
			return m.Content
		}
		cut := previewLimit
		for cut > 0 && !utf8.RuneStart(m.Content[cut]) {
			cut--
		}
		return m.Content[:cut]
	}
	return ""
}
