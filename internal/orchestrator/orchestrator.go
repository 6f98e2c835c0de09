// Package orchestrator runs the user-facing tasks: summarize, quiz, chat,
// translate and image chat. Each task owns one session context; calls on the same context
// are serialized and a newer call supersedes the stream of an older one.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zimflow/internal/apperr"
	"zimflow/internal/backend"
	"zimflow/internal/cache"
	"zimflow/internal/prompt"
	"zimflow/internal/quiz"
	"zimflow/internal/session"
	"zimflow/internal/stream"
)

// Params are the sampling settings of one task context.
type Params struct {
	TopK        int
	Temperature float64
}

// Settings tune the orchestrator.
type Settings struct {
	// MaxInputTokens is the input ceiling checked before any prompt call.
	MaxInputTokens int
	QuizMode       quiz.Mode
	CacheTTL       time.Duration
	// MaxVisionChats caps the open image conversations; zero means no cap.
	MaxVisionChats int

	Summary   Params
	Quiz      Params
	Chat      Params
	Translate Params
	Vision    Params
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		MaxInputTokens: 1024,
		QuizMode:       quiz.Strict,
		CacheTTL:       24 * time.Hour,
		MaxVisionChats: 8,
		Summary:        Params{TopK: 3, Temperature: 1},
		Quiz:           Params{TopK: 3, Temperature: 1},
		Chat:           Params{TopK: 1, Temperature: 0.2},
		Translate:      Params{TopK: 1, Temperature: 0},
		Vision:         Params{TopK: 40, Temperature: 0.8},
	}
}

// Availability is the backend state as reported to callers.
type Availability struct {
	State     backend.Availability `json:"state"`
	Available bool                 `json:"available"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithSettings(s Settings) Option {
	return func(o *Orchestrator) { o.settings = s }
}

// WithCache enables the summary cache.
func WithCache(c cache.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithSessionOptions applies opts to every session manager.
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *Orchestrator) { o.sessionOpts = append(o.sessionOpts, opts...) }
}

// Orchestrator owns the summarizer, quiz, chat and translator contexts and
// the open image conversations.
type Orchestrator struct {
	log           *slog.Logger
	backend       backend.Backend
	visionBackend backend.Backend
	settings    Settings
	cache       cache.Cache
	sessionOpts []session.Option

	summarizer *taskContext
	quizzer    *taskContext
	chat       *taskContext
	translator *taskContext
	vision     visionChats
}

// New builds an orchestrator over b.
func New(log *slog.Logger, b backend.Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:      log,
		backend:  b,
		settings: DefaultSettings(),
		cache:    cache.NewNoOpCache(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.visionBackend == nil {
		o.visionBackend = b
	}
	o.vision.byID = make(map[string]*visionChat)
	o.summarizer = o.newContext("summarizer")
	o.quizzer = o.newContext("quiz")
	o.chat = o.newContext("chat")
	o.translator = o.newContext("translator")
	return o
}

func (o *Orchestrator) newContext(name string) *taskContext {
	return &taskContext{
		log:      o.log.With("context", name),
		sessions: session.NewManager(name, o.backend, o.log, o.sessionOpts...),
	}
}

func (o *Orchestrator) newVisionContext(id string) *taskContext {
	name := "vision:" + id
	return &taskContext{
		log:      o.log.With("context", name),
		sessions: session.NewManager(name, o.visionBackend, o.log, o.sessionOpts...),
	}
}

func (o *Orchestrator) contexts() []*taskContext {
	return []*taskContext{o.summarizer, o.quizzer, o.chat, o.translator}
}

// Summarize returns the full summary of text.
func (o *Orchestrator) Summarize(ctx context.Context, text string) (string, error) {
	s, err := o.SummarizeStream(ctx, text)
	if err != nil {
		return "", err
	}
	return s.Collect()
}

// SummarizeStream starts a summary and returns its delta stream. A cached
// summary is replayed as a single delta without touching the backend.
func (o *Orchestrator) SummarizeStream(ctx context.Context, text string) (*stream.Stream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, emptyInput()
	}

	key := cache.Key(text)
	if hit, err := o.cache.GetSummary(ctx, key); err != nil {
		o.log.Warn("summary cache lookup failed", "err", err)
	} else if hit != nil {
		o.log.Debug("summary served from cache", "key", key)
		return stream.New(&backend.StaticStream{Snapshots: []string{hit.Text}}, nil), nil
	}

	req := prompt.Summary(text)
	tc := o.summarizer
	tc.mu.Lock()
	defer tc.mu.Unlock()

	sess, err := o.fresh(ctx, tc, req.System, o.settings.Summary, text)
	if err != nil {
		return nil, err
	}
	src, err := sess.PromptStreaming(ctx, req.User)
	if err != nil {
		tc.fail(sess, err)
		return nil, err
	}
	return tc.track(sess, src, func(summary string) {
		entry := &cache.Summary{Text: summary, CreatedAt: time.Now().UTC()}
		if err := o.cache.SetSummary(context.WithoutCancel(ctx), key, entry, o.settings.CacheTTL); err != nil {
			o.log.Warn("failed to cache summary", "err", err)
		}
	}), nil
}

// GenerateQuiz asks for one multiple-choice question about summary.
// A response that does not follow the quiz format fails with MalformedQuiz.
func (o *Orchestrator) GenerateQuiz(ctx context.Context, summary string) (quiz.Quiz, error) {
	if strings.TrimSpace(summary) == "" {
		return quiz.Quiz{}, emptyInput()
	}

	req := prompt.Quiz(summary)
	tc := o.quizzer
	tc.mu.Lock()
	defer tc.mu.Unlock()

	sess, err := o.fresh(ctx, tc, req.System, o.settings.Quiz, summary)
	if err != nil {
		return quiz.Quiz{}, err
	}
	out, err := sess.Prompt(ctx, req.User)
	if err != nil {
		tc.fail(sess, err)
		return quiz.Quiz{}, err
	}
	q, err := quiz.Parse(out, o.settings.QuizMode)
	if err != nil {
		tc.log.Warn("quiz response did not parse", "mode", o.settings.QuizMode, "err", err)
		tc.fail(sess, err)
		return quiz.Quiz{}, err
	}
	return q, nil
}

// Chat sends message to the tutor conversation and streams the reply.
// Earlier turns stay in the session until ResetChat or Cleanup.
func (o *Orchestrator) Chat(ctx context.Context, message string) (*stream.Stream, error) {
	if strings.TrimSpace(message) == "" {
		return nil, emptyInput()
	}

	req := prompt.Chat()
	tc := o.chat
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.supersede()
	sess, err := tc.sessions.Ensure(ctx, o.config(req.System, o.settings.Chat))
	if err != nil {
		return nil, err
	}
	if err := o.checkInput(ctx, tc, sess, message); err != nil {
		return nil, err
	}
	src, err := sess.PromptStreaming(ctx, message)
	if err != nil {
		tc.fail(sess, err)
		return nil, err
	}
	return tc.track(sess, src, nil), nil
}

// Translate renders text from one supported language into another.
func (o *Orchestrator) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	srcName, ok := prompt.LanguageName(sourceLanguage)
	if !ok {
		return "", unsupported(sourceLanguage)
	}
	tgtName, ok := prompt.LanguageName(targetLanguage)
	if !ok {
		return "", unsupported(targetLanguage)
	}
	if sourceLanguage == targetLanguage {
		return "", apperr.New(apperr.KindUnsupportedLanguage, "source and target language are the same")
	}
	if strings.TrimSpace(text) == "" {
		return "", emptyInput()
	}

	req := prompt.Translate(text, srcName, tgtName)
	tc := o.translator
	tc.mu.Lock()
	defer tc.mu.Unlock()

	sess, err := o.fresh(ctx, tc, req.System, o.settings.Translate, text)
	if err != nil {
		return "", err
	}
	out, err := sess.Prompt(ctx, req.User)
	if err != nil {
		tc.fail(sess, err)
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Languages lists the translation languages.
func (o *Orchestrator) Languages() []prompt.Language {
	return prompt.Languages()
}

// CheckAvailability queries the backend without creating a session.
func (o *Orchestrator) CheckAvailability(ctx context.Context) (Availability, error) {
	state, err := o.backend.Availability(ctx)
	if err != nil {
		return Availability{State: backend.Unavailable}, apperr.Backend(err)
	}
	return Availability{State: state, Available: state == backend.Available}, nil
}

// Progress returns the latest download percentage per context, including
// open image conversations.
func (o *Orchestrator) Progress() map[string]int {
	out := make(map[string]int, 4)
	for _, tc := range o.contexts() {
		out[tc.sessions.Name()] = tc.sessions.Progress()
	}
	for _, vc := range o.visionChatsSnapshot() {
		out[vc.sessions.Name()] = vc.sessions.Progress()
	}
	return out
}

// ResetChat ends the tutor conversation. The next Chat starts a new one.
func (o *Orchestrator) ResetChat() {
	o.chat.supersede()
	o.chat.sessions.Destroy()
}

// Cleanup destroys every session and closes the image conversations.
// In-flight streams end with SessionInvalidated. Safe to call repeatedly.
func (o *Orchestrator) Cleanup() {
	for _, tc := range o.contexts() {
		tc.supersede()
		tc.sessions.Destroy()
	}
	for _, id := range o.VisionConversations() {
		o.EndVisionChat(id)
	}
	o.log.Debug("all sessions destroyed")
}

// fresh supersedes the context's stream, recreates its session and checks input.
func (o *Orchestrator) fresh(ctx context.Context, tc *taskContext, system string, p Params, input string) (*session.Session, error) {
	tc.supersede()
	sess, err := tc.sessions.Recreate(ctx, o.config(system, p))
	if err != nil {
		return nil, err
	}
	if err := o.checkInput(ctx, tc, sess, input); err != nil {
		if apperr.KindOf(err) == apperr.KindInputTooLong {
			tc.sessions.Discard(sess)
		}
		return nil, err
	}
	return sess, nil
}

// checkInput fails with InputTooLong when input is over the ceiling. The
// session is left alone in that case: a reused conversation survives a turn
// that was rejected before it was sent.
func (o *Orchestrator) checkInput(ctx context.Context, tc *taskContext, sess *session.Session, input string) error {
	n, err := sess.MeasureInputUsage(ctx, input)
	if err != nil {
		tc.fail(sess, err)
		return err
	}
	if n > o.settings.MaxInputTokens {
		return apperr.New(apperr.KindInputTooLong,
			fmt.Sprintf("input uses %d tokens, limit is %d", n, o.settings.MaxInputTokens))
	}
	return nil
}

func (o *Orchestrator) config(system string, p Params) session.Config {
	return session.Config{SystemPrompt: system, TopK: p.TopK, Temperature: p.Temperature}
}

func emptyInput() error {
	return apperr.New(apperr.KindEmptyInput, "input text is empty")
}

func unsupported(code string) error {
	return apperr.New(apperr.KindUnsupportedLanguage, fmt.Sprintf("language %q is not supported", code))
}
