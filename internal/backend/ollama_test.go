package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOllama struct {
	mu       sync.Mutex
	models   []string
	requests []map[string]any
}

func (f *fakeOllama) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		models := make([]map[string]string, 0, len(f.models))
		for _, m := range f.models {
			models = append(models, map[string]string{"name": m, "model": m})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"models": models})
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]any{"status": "pulling manifest"})
		_ = enc.Encode(map[string]any{"status": "downloading", "total": 200, "completed": 150})
		_ = enc.Encode(map[string]any{"status": "downloading", "total": 200, "completed": 50})
		_ = enc.Encode(map[string]any{"status": "success"})
		f.mu.Lock()
		f.models = append(f.models, "gemma3:4b")
		f.mu.Unlock()
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		if stream, _ := req["stream"].(bool); stream {
			for _, part := range []string{"Hel", "lo", " world"} {
				_ = enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": part}, "done": false})
			}
			_ = enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": ""}, "done": true})
			return
		}
		_ = enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": "Hello world"}, "done": true})
	})
	return mux
}

func newTestOllama(t *testing.T, f *fakeOllama) *Ollama {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	o, err := NewOllama(slog.New(slog.NewTextHandler(io.Discard, nil)), srv.URL, "gemma3:4b")
	require.NoError(t, err)
	return o
}

func TestOllamaAvailability(t *testing.T) {
	ctx := context.Background()

	present := newTestOllama(t, &fakeOllama{models: []string{"gemma3:4b"}})
	state, err := present.Availability(ctx)
	require.NoError(t, err)
	assert.Equal(t, Available, state)

	missing := newTestOllama(t, &fakeOllama{models: []string{"llama3.2:latest"}})
	state, err = missing.Availability(ctx)
	require.NoError(t, err)
	assert.Equal(t, Downloadable, state)

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	down, err := NewOllama(slog.New(slog.NewTextHandler(io.Discard, nil)), srv.URL, "gemma3:4b")
	require.NoError(t, err)
	state, err = down.Availability(ctx)
	require.NoError(t, err)
	assert.Equal(t, Unavailable, state)

	_, err = down.Create(ctx, Options{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOllamaCreatePullsMissingModel(t *testing.T) {
	f := &fakeOllama{}
	o := newTestOllama(t, f)

	var events []Progress
	sess, err := o.Create(context.Background(), Options{
		SystemPrompt: "sys",
		TopK:         3,
		Temperature:  1,
		Monitor:      func(p Progress) { events = append(events, p) },
	})
	require.NoError(t, err)
	defer sess.Destroy()

	assert.Equal(t, []Progress{{Loaded: 150, Total: 200}, {Loaded: 50, Total: 200}}, events)
	state, err := o.Availability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Available, state)
}

func TestOllamaSessionStreamsCumulativeSnapshots(t *testing.T) {
	f := &fakeOllama{models: []string{"gemma3:4b"}}
	o := newTestOllama(t, f)
	ctx := context.Background()

	sess, err := o.Create(ctx, Options{SystemPrompt: "tutor", TopK: 1, Temperature: 0.2})
	require.NoError(t, err)
	defer sess.Destroy()

	stream, err := sess.PromptStreaming(ctx, "hi")
	require.NoError(t, err)
	var snapshots []string
	for stream.Next() {
		snapshots = append(snapshots, stream.Current())
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []string{"Hel", "Hello", "Hello world"}, snapshots)

	out, err := sess.Prompt(ctx, "again")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.requests, 2)
	first := f.requests[0]
	opts := first["options"].(map[string]any)
	assert.Equal(t, float64(1), opts["top_k"])
	assert.Equal(t, 0.2, opts["temperature"])

	// system, first user turn, first answer, new user turn
	second := f.requests[1]["messages"].([]any)
	require.Len(t, second, 4)
	assert.Equal(t, "Hello world", second[2].(map[string]any)["content"])
	assert.Equal(t, "again", second[3].(map[string]any)["content"])
}

func TestOllamaSessionSendsImages(t *testing.T) {
	f := &fakeOllama{models: []string{"gemma3:4b"}}
	o := newTestOllama(t, f)
	ctx := context.Background()

	sess, err := o.Create(ctx, Options{})
	require.NoError(t, err)
	defer sess.Destroy()

	img := Image{MIMEType: "image/png", Data: []byte("png-bytes")}
	stream, err := sess.(ImageSession).PromptStreamingImages(ctx, "what is this?", []Image{img})
	require.NoError(t, err)
	for stream.Next() {
	}
	require.NoError(t, stream.Err())

	_, err = sess.Prompt(ctx, "and now?")
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.requests, 2)
	want := []any{base64.StdEncoding.EncodeToString(img.Data)}

	first := f.requests[0]["messages"].([]any)
	require.Len(t, first, 1)
	assert.Equal(t, want, first[0].(map[string]any)["images"])

	// the image stays with its turn in the replayed history
	second := f.requests[1]["messages"].([]any)
	require.Len(t, second, 3)
	assert.Equal(t, want, second[0].(map[string]any)["images"])
	assert.Nil(t, second[2].(map[string]any)["images"])
}

func TestOllamaDestroyedSession(t *testing.T) {
	o := newTestOllama(t, &fakeOllama{models: []string{"gemma3:4b"}})
	ctx := context.Background()

	sess, err := o.Create(ctx, Options{})
	require.NoError(t, err)
	sess.Destroy()
	sess.Destroy()

	_, err = sess.Prompt(ctx, "x")
	assert.ErrorIs(t, err, ErrSessionDestroyed)
	_, err = sess.PromptStreaming(ctx, "x")
	assert.ErrorIs(t, err, ErrSessionDestroyed)
	_, err = sess.MeasureInputUsage(ctx, "x")
	assert.ErrorIs(t, err, ErrSessionDestroyed)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens("   "))
	assert.Equal(t, 3, EstimateTokens("a bb ccc"))
	assert.Equal(t, 6, EstimateTokens("internationalization is"))
}
