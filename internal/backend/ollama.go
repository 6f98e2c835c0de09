package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/ollama/ollama/api"
)

// Ollama talks to a local Ollama instance. A missing model is reported as
// Downloadable and pulled on Create, with pull progress sent to the monitor.
type Ollama struct {
	client  *api.Client
	model   string
	log     *slog.Logger
	pulling atomic.Int32
}

// NewOllama builds an adapter for host (empty means OLLAMA_HOST or the default).
func NewOllama(log *slog.Logger, host, model string) (*Ollama, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama model required")
	}
	var client *api.Client
	if host == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client from environment: %w", err)
		}
		client = c
	} else {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		client = api.NewClient(u, http.DefaultClient)
	}
	return &Ollama{client: client, model: model, log: log}, nil
}

func (o *Ollama) Availability(ctx context.Context) (Availability, error) {
	if err := o.client.Heartbeat(ctx); err != nil {
		o.log.Debug("ollama heartbeat failed", "err", err)
		return Unavailable, nil
	}
	if o.pulling.Load() > 0 {
		return Downloading, nil
	}
	list, err := o.client.List(ctx)
	if err != nil {
		return "", fmt.Errorf("ollama list models: %w", err)
	}
	for _, m := range list.Models {
		if modelMatches(m.Name, o.model) || modelMatches(m.Model, o.model) {
			return Available, nil
		}
	}
	return Downloadable, nil
}

func (o *Ollama) Create(ctx context.Context, opts Options) (Session, error) {
	state, err := o.Availability(ctx)
	if err != nil {
		return nil, err
	}
	switch state {
	case Unavailable:
		return nil, ErrUnavailable
	case Downloadable, Downloading:
		if err := o.pull(ctx, opts.Monitor); err != nil {
			return nil, err
		}
	}

	sctx, cancel := context.WithCancel(context.Background())
	return &ollamaSession{
		client: o.client,
		model:  o.model,
		options: map[string]any{
			"top_k":       opts.TopK,
			"temperature": opts.Temperature,
		},
		conv:   newConversation(opts.SystemPrompt),
		ctx:    sctx,
		cancel: cancel,
	}, nil
}

func (o *Ollama) pull(ctx context.Context, monitor func(Progress)) error {
	o.pulling.Add(1)
	defer o.pulling.Add(-1)
	o.log.Info("pulling ollama model", "model", o.model)
	err := o.client.Pull(ctx, &api.PullRequest{Model: o.model}, func(p api.ProgressResponse) error {
		if monitor != nil && p.Total > 0 {
			monitor(Progress{Loaded: float64(p.Completed), Total: float64(p.Total)})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ollama pull %s: %w", o.model, err)
	}
	return nil
}

// modelMatches treats "llama3.2" and "llama3.2:latest" as the same model.
func modelMatches(name, want string) bool {
	if name == want {
		return true
	}
	if !strings.Contains(want, ":") {
		return name == want+":latest"
	}
	return false
}

var _ ImageSession = (*ollamaSession)(nil)

type ollamaSession struct {
	client  *api.Client
	model   string
	options map[string]any
	conv    *conversation
	ctx     context.Context
	cancel  context.CancelFunc
}

func (s *ollamaSession) Prompt(ctx context.Context, input string) (string, error) {
	ctx, release, err := s.bind(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	stream := false
	var out strings.Builder
	err = s.client.Chat(ctx, s.request(input, nil, &stream), func(r api.ChatResponse) error {
		out.WriteString(r.Message.Content)
		return nil
	})
	if err != nil {
		return "", s.mapErr(err)
	}
	s.conv.record(input, nil, out.String())
	return out.String(), nil
}

func (s *ollamaSession) PromptStreaming(ctx context.Context, input string) (SnapshotStream, error) {
	return s.stream(ctx, input, nil)
}

// PromptStreamingImages sends images with the turn. The model must be
// multimodal (gemma3:4b and up); text-only models ignore or reject them.
func (s *ollamaSession) PromptStreamingImages(ctx context.Context, input string, images []Image) (SnapshotStream, error) {
	return s.stream(ctx, input, images)
}

func (s *ollamaSession) stream(ctx context.Context, input string, images []Image) (SnapshotStream, error) {
	if s.ctx.Err() != nil {
		return nil, ErrSessionDestroyed
	}
	return Pipe(ctx, func(ctx context.Context, emit func(string) error) error {
		ctx, release, err := s.bind(ctx)
		if err != nil {
			return err
		}
		defer release()

		stream := true
		var acc strings.Builder
		err = s.client.Chat(ctx, s.request(input, images, &stream), func(r api.ChatResponse) error {
			if r.Message.Content == "" {
				return nil
			}
			acc.WriteString(r.Message.Content)
			return emit(acc.String())
		})
		if err != nil {
			return s.mapErr(err)
		}
		s.conv.record(input, images, acc.String())
		return nil
	}), nil
}

func (s *ollamaSession) MeasureInputUsage(_ context.Context, input string) (int, error) {
	if s.ctx.Err() != nil {
		return 0, ErrSessionDestroyed
	}
	return EstimateTokens(input), nil
}

func (s *ollamaSession) Destroy() { s.cancel() }

func (s *ollamaSession) request(input string, images []Image, stream *bool) *api.ChatRequest {
	history := s.conv.history()
	msgs := make([]api.Message, 0, 2+2*len(history))
	if s.conv.system != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: s.conv.system})
	}
	for _, t := range history {
		msgs = append(msgs,
			api.Message{Role: "user", Content: t.User, Images: ollamaImages(t.Images)},
			api.Message{Role: "assistant", Content: t.Assistant},
		)
	}
	msgs = append(msgs, api.Message{Role: "user", Content: input, Images: ollamaImages(images)})
	return &api.ChatRequest{
		Model:    s.model,
		Messages: msgs,
		Stream:   stream,
		Options:  s.options,
	}
}

func ollamaImages(images []Image) []api.ImageData {
	if len(images) == 0 {
		return nil
	}
	out := make([]api.ImageData, len(images))
	for i, img := range images {
		out[i] = api.ImageData(img.Data)
	}
	return out
}

// bind derives a context that is also cancelled when the session is destroyed.
func (s *ollamaSession) bind(ctx context.Context) (context.Context, func(), error) {
	if s.ctx.Err() != nil {
		return nil, nil, ErrSessionDestroyed
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

func (s *ollamaSession) mapErr(err error) error {
	if s.ctx.Err() != nil {
		return ErrSessionDestroyed
	}
	return err
}
