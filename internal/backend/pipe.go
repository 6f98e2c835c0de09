package backend

import "context"

// Pipe turns a callback-style producer into a SnapshotStream. produce runs on
// its own goroutine and hands each snapshot over an unbuffered channel, so the
// producer never runs more than one snapshot ahead of the reader. Close
// cancels the producer's context.
func Pipe(ctx context.Context, produce func(ctx context.Context, emit func(string) error) error) SnapshotStream {
	ctx, cancel := context.WithCancel(ctx)
	p := &pipeStream{snapshots: make(chan string), cancel: cancel}
	go func() {
		defer close(p.snapshots)
		p.err = produce(ctx, func(snapshot string) error {
			select {
			case p.snapshots <- snapshot:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return p
}

type pipeStream struct {
	snapshots chan string
	current   string
	err       error
	cancel    context.CancelFunc
}

func (p *pipeStream) Next() bool {
	s, ok := <-p.snapshots
	if !ok {
		return false
	}
	p.current = s
	return true
}

func (p *pipeStream) Current() string { return p.current }

// Err is only meaningful once Next has returned false.
func (p *pipeStream) Err() error { return p.err }

func (p *pipeStream) Close() error {
	p.cancel()
	return nil
}
