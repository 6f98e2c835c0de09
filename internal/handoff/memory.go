package handoff

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Channel, used when no Redis is configured.
type Memory struct {
	maxAge time.Duration
	now    func() time.Time

	mu       sync.Mutex
	pending  map[Surface]Selection
	watchers map[Surface]map[chan Selection]struct{}
}

func NewMemory(maxAge time.Duration) *Memory {
	return &Memory{
		maxAge:   maxAge,
		now:      time.Now,
		pending:  make(map[Surface]Selection),
		watchers: make(map[Surface]map[chan Selection]struct{}),
	}
}

func (m *Memory) Put(_ context.Context, surface Surface, text string) (Selection, error) {
	sel := Selection{Surface: surface, Text: strings.TrimSpace(text), Timestamp: m.now().UTC()}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[surface] = sel
	for ch := range m.watchers[surface] {
		// a watcher that has not drained the last selection only gets the newest
		select {
		case <-ch:
		default:
		}
		ch <- sel
	}
	return sel, nil
}

func (m *Memory) Take(_ context.Context, surface Surface) (Selection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sel, ok := m.pending[surface]
	if !ok {
		return Selection{}, ErrEmpty
	}
	delete(m.pending, surface)
	if expired(sel, m.maxAge, m.now()) {
		return Selection{}, ErrEmpty
	}
	return sel, nil
}

func (m *Memory) Watch(ctx context.Context, surface Surface) (<-chan Selection, error) {
	ch := make(chan Selection, 1)
	m.mu.Lock()
	if m.watchers[surface] == nil {
		m.watchers[surface] = make(map[chan Selection]struct{})
	}
	m.watchers[surface][ch] = struct{}{}
	m.mu.Unlock()

	out := make(chan Selection)
	go func() {
		defer close(out)
		defer func() {
			m.mu.Lock()
			delete(m.watchers[surface], ch)
			m.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case sel := <-ch:
				select {
				case out <- sel:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *Memory) Close() error { return nil }
