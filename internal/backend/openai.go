package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultPromptTimeout = 2 * time.Minute

// OpenAI calls a Chat Completions endpoint: api.openai.com, or any
// OpenAI-compatible local server when baseURL is set. Models are never
// downloaded through this adapter.
type OpenAI struct {
	client *openai.Client
	model  openai.ChatModel
	log    *slog.Logger
}

// NewOpenAI builds the adapter. Local servers usually need only baseURL.
func NewOpenAI(log *slog.Logger, apiKey, baseURL string, model openai.ChatModel) (*OpenAI, error) {
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("api key or base url required")
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	cli := openai.NewClient(opts...)
	return &OpenAI{client: &cli, model: model, log: log}, nil
}

func (c *OpenAI) Availability(ctx context.Context) (Availability, error) {
	if _, err := c.client.Models.Get(ctx, string(c.model)); err != nil {
		c.log.Debug("openai model lookup failed", "model", c.model, "err", err)
		return Unavailable, nil
	}
	return Available, nil
}

func (c *OpenAI) Create(ctx context.Context, opts Options) (Session, error) {
	state, err := c.Availability(ctx)
	if err != nil {
		return nil, err
	}
	if state != Available {
		return nil, ErrUnavailable
	}
	sctx, cancel := context.WithCancel(context.Background())
	return &openaiSession{
		client:      c.client,
		model:       c.model,
		topK:        opts.TopK,
		temperature: opts.Temperature,
		conv:        newConversation(opts.SystemPrompt),
		ctx:         sctx,
		cancel:      cancel,
	}, nil
}

var _ ImageSession = (*openaiSession)(nil)

type openaiSession struct {
	client      *openai.Client
	model       openai.ChatModel
	topK        int
	temperature float64
	conv        *conversation
	ctx         context.Context
	cancel      context.CancelFunc
}

func (s *openaiSession) Prompt(ctx context.Context, input string) (string, error) {
	ctx, release, err := s.bind(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	resp, err := s.client.Chat.Completions.New(ctx, s.params(input, nil), s.extra()...)
	if err != nil {
		return "", s.mapErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	out := resp.Choices[0].Message.Content
	s.conv.record(input, nil, out)
	return out, nil
}

func (s *openaiSession) PromptStreaming(ctx context.Context, input string) (SnapshotStream, error) {
	return s.stream(ctx, input, nil)
}

// PromptStreamingImages sends images as data URL content parts.
func (s *openaiSession) PromptStreamingImages(ctx context.Context, input string, images []Image) (SnapshotStream, error) {
	return s.stream(ctx, input, images)
}

func (s *openaiSession) stream(ctx context.Context, input string, images []Image) (SnapshotStream, error) {
	if s.ctx.Err() != nil {
		return nil, ErrSessionDestroyed
	}
	return Pipe(ctx, func(ctx context.Context, emit func(string) error) error {
		ctx, release, err := s.bind(ctx)
		if err != nil {
			return err
		}
		defer release()

		stream := s.client.Chat.Completions.NewStreaming(ctx, s.params(input, images), s.extra()...)
		defer stream.Close()
		acc := openai.ChatCompletionAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" || len(acc.Choices) == 0 {
				continue
			}
			if err := emit(acc.Choices[0].Message.Content); err != nil {
				return err
			}
		}
		if err := stream.Err(); err != nil {
			return s.mapErr(err)
		}
		text := ""
		if len(acc.Choices) > 0 {
			text = acc.Choices[0].Message.Content
		}
		s.conv.record(input, images, text)
		return nil
	}), nil
}

func (s *openaiSession) MeasureInputUsage(_ context.Context, input string) (int, error) {
	if s.ctx.Err() != nil {
		return 0, ErrSessionDestroyed
	}
	return EstimateTokens(input), nil
}

func (s *openaiSession) Destroy() { s.cancel() }

func (s *openaiSession) params(input string, images []Image) openai.ChatCompletionNewParams {
	history := s.conv.history()
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2+2*len(history))
	if s.conv.system != "" {
		msgs = append(msgs, openai.SystemMessage(s.conv.system))
	}
	for _, t := range history {
		msgs = append(msgs, userMessage(t.User, t.Images), openai.AssistantMessage(t.Assistant))
	}
	msgs = append(msgs, userMessage(input, images))
	return openai.ChatCompletionNewParams{
		Model:       s.model,
		Messages:    msgs,
		Temperature: openai.Float(s.temperature),
	}
}

func userMessage(text string, images []Image) openai.ChatCompletionMessageParamUnion {
	if len(images) == 0 {
		return openai.UserMessage(text)
	}
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(images)+1)
	if text != "" {
		parts = append(parts, openai.TextContentPart(text))
	}
	for _, img := range images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: img.DataURL()}))
	}
	return openai.UserMessage(parts)
}

// extra sends top_k, which the Chat Completions schema lacks but local
// OpenAI-compatible servers accept.
func (s *openaiSession) extra() []option.RequestOption {
	if s.topK <= 0 {
		return nil
	}
	return []option.RequestOption{option.WithJSONSet("top_k", s.topK)}
}

func (s *openaiSession) bind(ctx context.Context) (context.Context, func(), error) {
	if s.ctx.Err() != nil {
		return nil, nil, ErrSessionDestroyed
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPromptTimeout)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}, nil
}

func (s *openaiSession) mapErr(err error) error {
	if s.ctx.Err() != nil {
		return ErrSessionDestroyed
	}
	return err
}
