package backend

import "sync"

// Turn is one prompt/response exchange.
type Turn struct {
	User      string
	Images    []Image
	Assistant string
}

// conversation is the history a session replays on every prompt.
type conversation struct {
	mu     sync.Mutex
	system string
	turns  []Turn
}

func newConversation(system string) *conversation {
	return &conversation{system: system}
}

func (c *conversation) history() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *conversation) record(user string, images []Image, assistant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, Turn{User: user, Images: images, Assistant: assistant})
}
