package orchestrator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"zimflow/internal/apperr"
	"zimflow/internal/backend"
	"zimflow/internal/prompt"
	"zimflow/internal/stream"
)

// WithVisionBackend serves image conversations from b instead of the main
// backend, so a larger multimodal model can sit next to the text model.
func WithVisionBackend(b backend.Backend) Option {
	return func(o *Orchestrator) { o.visionBackend = b }
}

// visionChat is one named image conversation.
type visionChat struct {
	*taskContext
	ended atomic.Bool
}

// visionChats holds the open image conversations, least recently used first.
type visionChats struct {
	mu    sync.Mutex
	byID  map[string]*visionChat
	order []string
}

// VisionChat sends message and images to the named conversation and streams
// the reply. Each conversation keeps its own session and history. Opening a
// conversation beyond Settings.MaxVisionChats ends the least recently used one.
func (o *Orchestrator) VisionChat(ctx context.Context, conversation, message string, images []backend.Image) (*stream.Stream, error) {
	if strings.TrimSpace(message) == "" && len(images) == 0 {
		return nil, emptyInput()
	}

	req := prompt.Vision()
	vc := o.visionChat(conversation)
	vc.mu.Lock()
	defer vc.mu.Unlock()

	vc.supersede()
	if vc.ended.Load() {
		return nil, conversationEnded(conversation)
	}
	sess, err := vc.sessions.Ensure(ctx, o.config(req.System, o.settings.Vision))
	if err != nil {
		return nil, err
	}
	// EndVisionChat may have run while the session was being created.
	if vc.ended.Load() {
		vc.sessions.Destroy()
		return nil, conversationEnded(conversation)
	}
	if err := o.checkInput(ctx, vc.taskContext, sess, message); err != nil {
		return nil, err
	}
	src, err := sess.PromptStreamingImages(ctx, message, images)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindImagesUnsupported {
			vc.fail(sess, err)
		}
		return nil, err
	}
	return vc.track(sess, src, nil), nil
}

// EndVisionChat destroys the named conversation. Unknown names are ignored.
func (o *Orchestrator) EndVisionChat(conversation string) {
	o.vision.mu.Lock()
	vc, ok := o.vision.byID[conversation]
	if ok {
		o.vision.remove(conversation)
	}
	o.vision.mu.Unlock()
	if ok {
		vc.end()
	}
}

// VisionConversations lists the open image conversations, least recently
// used first.
func (o *Orchestrator) VisionConversations() []string {
	o.vision.mu.Lock()
	defer o.vision.mu.Unlock()
	out := make([]string, len(o.vision.order))
	copy(out, o.vision.order)
	return out
}

// visionChat returns the named conversation, opening it if needed, and marks
// it most recently used.
func (o *Orchestrator) visionChat(id string) *visionChat {
	var evicted []*visionChat
	defer func() {
		for _, vc := range evicted {
			vc.end()
		}
	}()

	v := &o.vision
	v.mu.Lock()
	defer v.mu.Unlock()

	if vc, ok := v.byID[id]; ok {
		v.remove(id)
		v.byID[id] = vc
		v.order = append(v.order, id)
		return vc
	}

	vc := &visionChat{taskContext: o.newVisionContext(id)}
	v.byID[id] = vc
	v.order = append(v.order, id)
	for limit := o.settings.MaxVisionChats; limit > 0 && len(v.order) > limit; {
		oldest := v.order[0]
		evicted = append(evicted, v.byID[oldest])
		o.log.Debug("closing least recently used vision conversation", "conversation", oldest)
		v.remove(oldest)
	}
	return vc
}

func (o *Orchestrator) visionChatsSnapshot() []*visionChat {
	o.vision.mu.Lock()
	defer o.vision.mu.Unlock()
	out := make([]*visionChat, 0, len(o.vision.order))
	for _, id := range o.vision.order {
		out = append(out, o.vision.byID[id])
	}
	return out
}

// remove drops id from the set. The caller holds mu.
func (v *visionChats) remove(id string) {
	delete(v.byID, id)
	for i, other := range v.order {
		if other == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			return
		}
	}
}

// end marks the conversation closed before destroying its session, so a
// call that is still creating one destroys it on its own.
func (vc *visionChat) end() {
	vc.ended.Store(true)
	vc.supersede()
	vc.sessions.Destroy()
}

func conversationEnded(id string) error {
	return apperr.New(apperr.KindSessionInvalidated, "vision conversation "+id+" was closed")
}
