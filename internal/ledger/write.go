package ledger

import (
	"context"
	"sync"
)

// Write is the handle of a non-blocking ledger write. Callers may ignore it;
// failures are logged and counted either way.
type Write struct {
	kind    string
	done    chan struct{}
	dropped bool

	mu        sync.Mutex
	completed bool
	err       error
	handlers  []func(error)
}

func newWrite(kind string) *Write {
	return &Write{kind: kind, done: make(chan struct{})}
}

// droppedWrite is returned for input that was rejected before reaching the store.
func droppedWrite(kind string) *Write {
	w := newWrite(kind)
	w.dropped = true
	w.completed = true
	close(w.done)
	return w
}

func (w *Write) Kind() string { return w.kind }

// Dropped reports whether the write was discarded without touching the store.
func (w *Write) Dropped() bool { return w.dropped }

// Done is closed once the write has completed or failed.
func (w *Write) Done() <-chan struct{} { return w.done }

// Err returns the failure of a completed write. It is nil while pending.
func (w *Write) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Wait blocks until the write completes or ctx ends.
func (w *Write) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnError registers fn to run if the write fails. On an already failed
// write fn runs immediately.
func (w *Write) OnError(fn func(error)) *Write {
	w.mu.Lock()
	if w.completed {
		err := w.err
		w.mu.Unlock()
		if err != nil {
			fn(err)
		}
		return w
	}
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
	return w
}

// complete runs the error handlers before closing Done.
func (w *Write) complete(err error) {
	w.mu.Lock()
	w.err = err
	w.completed = true
	handlers := w.handlers
	w.handlers = nil
	w.mu.Unlock()

	if err != nil {
		for _, fn := range handlers {
			fn(err)
		}
	}
	close(w.done)
}
