package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorvx/Sorvx-main-ai/internal/auth"
	"github.com/sorvx/Sorvx-main-ai/internal/chat"
	"github.com/sorvx/Sorvx-main-ai/internal/log"
	"github.com/sorvx/Sorvx-main-ai/internal/transcript"
	"github.com/sorvx/Sorvx-main-ai/internal/upload"
)

// fakeOrch streams a scripted reply through the emitter.
type fakeOrch struct {
	run func(ctx context.Context, req *chat.Request, em chat.Emitter) error
}

func (f *fakeOrch) Run(ctx context.Context, req *chat.Request, em chat.Emitter) error {
	if f.run != nil {
		return f.run(ctx, req, em)
	}
	if err := em.Chunk("Hello"); err != nil {
		return err
	}
	return em.Done("conv-1", true)
}

// fakeStore is an in-memory ConversationStore.
type fakeStore struct {
	convs map[string]*transcript.Conversation
}

func newFakeStore(convs ...*transcript.Conversation) *fakeStore {
	s := &fakeStore{convs: make(map[string]*transcript.Conversation)}
	for _, c := range convs {
		s.convs[c.ID] = c
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id string) (*transcript.Conversation, error) {
	c, ok := s.convs[id]
	if !ok {
		return nil, transcript.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	if _, ok := s.convs[id]; !ok {
		return transcript.ErrNotFound
	}
	delete(s.convs, id)
	return nil
}

func (s *fakeStore) ListByOwner(_ context.Context, ownerID string) ([]*transcript.Conversation, error) {
	var out []*transcript.Conversation
	for _, c := range s.convs {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	server *Server
	gate   *auth.Gate
	store  *fakeStore
}

func newTestEnv(t *testing.T, orch Orchestrator, store *fakeStore) *testEnv {
	t.Helper()
	logger := log.NewNop()
	gate := auth.NewGate([]byte(testSecret), logger)
	uploads, err := upload.NewStore(t.TempDir(), 1024, logger)
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		Logger:       logger,
		Orchestrator: orch,
		Store:        store,
		Gate:         gate,
		Uploads:      uploads,
		IsDev:        true,
		RateBurst:    1000,
	})
	require.NoError(t, err)

	return &testEnv{server: srv, gate: gate, store: store}
}

func (e *testEnv) do(r *http.Request, userID string) *httptest.ResponseRecorder {
	if userID != "" {
		r.Header.Set("Authorization", "Bearer "+e.gate.SignToken(userID))
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, r)
	return w
}

func chatBody(t *testing.T, id, content string) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id": id,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestChat_RequiresAuth(t *testing.T) {
	env := newTestEnv(t, &fakeOrch{}, newFakeStore())

	w := env.do(httptest.NewRequest("POST", "/api/v1/chat", chatBody(t, "", "hi")), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unauthorized", resp.Error.Code)
}

func TestChat_InvalidBody(t *testing.T) {
	env := newTestEnv(t, &fakeOrch{}, newFakeStore())

	t.Run("malformed JSON", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/v1/chat", strings.NewReader("{nope"))
		w := env.do(r, "alice")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestChat_EmptyMessagesStillStreams(t *testing.T) {
	// An empty history reaches the orchestrator; the model may open the
	// conversation itself.
	env := newTestEnv(t, &fakeOrch{}, newFakeStore())

	r := httptest.NewRequest("POST", "/api/v1/chat", strings.NewReader(`{"messages":[]}`))
	w := env.do(r, "alice")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "event: done\n")
}

func TestChat_StreamsSSE(t *testing.T) {
	env := newTestEnv(t, &fakeOrch{}, newFakeStore())

	w := env.do(httptest.NewRequest("POST", "/api/v1/chat", chatBody(t, "", "hi")), "alice")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))

	body := w.Body.String()
	assert.Contains(t, body, "event: chunk\ndata: {\"text\":\"Hello\"}")
	assert.Contains(t, body, "event: done\n")
	assert.Contains(t, body, `"conversationId":"conv-1"`)
	assert.Contains(t, body, `"persisted":true`)
}

func TestChat_ToolAndErrorEvents(t *testing.T) {
	orch := &fakeOrch{run: func(_ context.Context, _ *chat.Request, em chat.Emitter) error {
		if err := em.Tool(transcript.ToolInvocation{
			ToolName: "reviewCode",
			CallID:   "c1",
			State:    transcript.InvocationResult,
			Result:   map[string]any{"score": 7},
		}); err != nil {
			return err
		}
		return em.Done("conv-9", false)
	}}
	env := newTestEnv(t, orch, newFakeStore())

	w := env.do(httptest.NewRequest("POST", "/api/v1/chat", chatBody(t, "", "review")), "alice")

	body := w.Body.String()
	assert.Contains(t, body, "event: tool\n")
	assert.Contains(t, body, `"toolName":"reviewCode"`)
	assert.Contains(t, body, `"persisted":false`)
}

func TestChat_RunFailureEmitsErrorEvent(t *testing.T) {
	orch := &fakeOrch{run: func(context.Context, *chat.Request, chat.Emitter) error {
		return assert.AnError
	}}
	env := newTestEnv(t, orch, newFakeStore())

	w := env.do(httptest.NewRequest("POST", "/api/v1/chat", chatBody(t, "", "hi")), "alice")

	// Headers were already streaming; the failure arrives as an SSE event.
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event: error\n")
	assert.Contains(t, w.Body.String(), `"code":"generation_failed"`)
}

func TestChat_ResumeForeignConversation(t *testing.T) {
	store := newFakeStore(&transcript.Conversation{ID: "conv-bob", OwnerID: "bob"})
	env := newTestEnv(t, &fakeOrch{}, store)

	w := env.do(httptest.NewRequest("POST", "/api/v1/chat", chatBody(t, "conv-bob", "hi")), "alice")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeleteChat(t *testing.T) {
	t.Run("owner deletes", func(t *testing.T) {
		store := newFakeStore(&transcript.Conversation{ID: "conv-1", OwnerID: "alice"})
		env := newTestEnv(t, &fakeOrch{}, store)

		w := env.do(httptest.NewRequest("DELETE", "/api/v1/chat?id=conv-1", nil), "alice")
		assert.Equal(t, http.StatusOK, w.Code)

		_, err := store.Get(context.Background(), "conv-1")
		assert.ErrorIs(t, err, transcript.ErrNotFound)
	})

	t.Run("missing id", func(t *testing.T) {
		env := newTestEnv(t, &fakeOrch{}, newFakeStore())
		w := env.do(httptest.NewRequest("DELETE", "/api/v1/chat", nil), "alice")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		env := newTestEnv(t, &fakeOrch{}, newFakeStore())
		w := env.do(httptest.NewRequest("DELETE", "/api/v1/chat?id=nope", nil), "alice")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("non-owner gets uniform unauthorized", func(t *testing.T) {
		store := newFakeStore(&transcript.Conversation{ID: "conv-1", OwnerID: "alice"})
		env := newTestEnv(t, &fakeOrch{}, store)

		w := env.do(httptest.NewRequest("DELETE", "/api/v1/chat?id=conv-1", nil), "mallory")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHistory(t *testing.T) {
	store := newFakeStore(
		&transcript.Conversation{ID: "conv-1", OwnerID: "alice", Messages: []transcript.Message{
			{Role: transcript.RoleUser, Content: "explain generics"},
			{Role: transcript.RoleAssistant, Content: "sure"},
		}},
		&transcript.Conversation{ID: "conv-2", OwnerID: "bob"},
	)
	env := newTestEnv(t, &fakeOrch{}, store)

	w := env.do(httptest.NewRequest("GET", "/api/v1/history", nil), "alice")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []historyEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "conv-1", entries[0].ID)
	assert.Equal(t, 2, entries[0].Messages)
	assert.Equal(t, "explain generics", entries[0].Preview)
}

func TestPreview_TruncatesOnRuneBoundary(t *testing.T) {
	// Byte 120 lands inside the two-byte "é"; the cut must back up to keep
	// the preview valid UTF-8.
	content := strings.Repeat("a", previewLimit-1) + "énd"
	got := preview([]transcript.Message{{Role: transcript.RoleUser, Content: content}})

	assert.True(t, utf8.ValidString(got), "preview = %q", got)
	assert.Equal(t, strings.Repeat("a", previewLimit-1), got)
}

func multipartUpload(t *testing.T, fieldName, fileName, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="`+fieldName+`"; filename="`+fileName+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	t.Run("stores a valid image", func(t *testing.T) {
		env := newTestEnv(t, &fakeOrch{}, newFakeStore())
		body, ct := multipartUpload(t, "file", "photo.jpg", "image/jpeg", "jpegdata")

		r := httptest.NewRequest("POST", "/api/v1/files/upload", body)
		r.Header.Set("Content-Type", ct)
		w := env.do(r, "alice")

		require.Equal(t, http.StatusOK, w.Code)
		var resp uploadResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, strings.HasSuffix(resp.Pathname, "-photo.jpg"), "pathname = %q", resp.Pathname)
		assert.Equal(t, "/api/v1/files/"+resp.Pathname, resp.URL)
		assert.Equal(t, int64(len("jpegdata")), resp.Size)

		get := env.do(httptest.NewRequest("GET", resp.URL, nil), "alice")
		require.Equal(t, http.StatusOK, get.Code)
		assert.Equal(t, "jpegdata", get.Body.String())
	})

	t.Run("rejects disallowed type with reason", func(t *testing.T) {
		env := newTestEnv(t, &fakeOrch{}, newFakeStore())
		body, ct := multipartUpload(t, "file", "notes.txt", "text/plain", "hello")

		r := httptest.NewRequest("POST", "/api/v1/files/upload", body)
		r.Header.Set("Content-Type", ct)
		w := env.do(r, "alice")

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "File type should be JPEG, PNG, or PDF", resp.Error.Message)
	})

	t.Run("requires auth", func(t *testing.T) {
		env := newTestEnv(t, &fakeOrch{}, newFakeStore())
		w := env.do(httptest.NewRequest("POST", "/api/v1/files/upload", nil), "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing file part", func(t *testing.T) {
		env := newTestEnv(t, &fakeOrch{}, newFakeStore())
		body, ct := multipartUpload(t, "wrong", "photo.jpg", "image/jpeg", "x")

		r := httptest.NewRequest("POST", "/api/v1/files/upload", body)
		r.Header.Set("Content-Type", ct)
		w := env.do(r, "alice")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown file is 404", func(t *testing.T) {
		env := newTestEnv(t, &fakeOrch{}, newFakeStore())
		w := env.do(httptest.NewRequest("GET", "/api/v1/files/ghost.png", nil), "alice")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHealthProbes(t *testing.T) {
	env := newTestEnv(t, &fakeOrch{}, newFakeStore())

	w := env.do(httptest.NewRequest("GET", "/health", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(httptest.NewRequest("GET", "/ready", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, &fakeOrch{}, newFakeStore())

	w := env.do(httptest.NewRequest("GET", "/api/v1/history", nil), "alice")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	// Dev mode: no HSTS.
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestRecoveryMiddleware(t *testing.T) {
	orch := &fakeOrch{run: func(context.Context, *chat.Request, chat.Emitter) error {
		panic("boom")
	}}
	env := newTestEnv(t, orch, newFakeStore())

	w := env.do(httptest.NewRequest("POST", "/api/v1/chat", chatBody(t, "", "hi")), "alice")
	// SSE headers were already sent when the panic hit; the request must not
	// crash the server and the recovery path must not double-write headers.
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	logger := log.NewNop()
	gate := auth.NewGate([]byte(testSecret), logger)
	uploads, err := upload.NewStore(t.TempDir(), 1024, logger)
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		Logger:       logger,
		Orchestrator: &fakeOrch{},
		Store:        newFakeStore(),
		Gate:         gate,
		Uploads:      uploads,
		IsDev:        true,
		RateBurst:    1,
	})
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/api/v1/history", nil)
	r.Header.Set("Authorization", "Bearer "+gate.SignToken("alice"))
	r.RemoteAddr = "10.0.0.1:1234"

	first := httptest.NewRecorder()
	srv.Handler().ServeHTTP(first, r)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	srv.Handler().ServeHTTP(second, r)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}
