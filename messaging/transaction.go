package messaging

import (
	"context"
	"fmt"
	"sync"
)

// TxContext is the extension surface a transaction exposes to
// transports: a memoized per-transaction item store, and ordered
// callback registration for the commit, abort and dispose phases.
type TxContext interface {
	// GetOrAdd returns the value stored under key, invoking factory at
	// most once per transaction to create it.
	GetOrAdd(key string, factory func() any) any

	// OnCommitted registers a callback invoked when the transaction
	// commits. Callbacks run in registration order; the first error
	// stops the commit and is returned to the committer.
	OnCommitted(fn func(ctx context.Context) error)

	// OnAborted registers a best-effort callback invoked when the
	// transaction aborts.
	OnAborted(fn func(ctx context.Context))

	// OnDisposed registers a callback invoked when the transaction is
	// disposed, after commit or abort.
	OnDisposed(fn func())
}

type txState int

const (
	txActive txState = iota
	txCommitted
	txAborted
)

// txItem holds one memoized item-store value. The once guard gives
// at-most-once factory execution without holding the context lock while
// the factory runs, so factories may register callbacks.
type txItem struct {
	once    sync.Once
	factory func() any
	value   any
}

// TransactionContext is the standard TxContext implementation. It also
// carries the driver side of the contract: Commit, Abort and Dispose,
// called exactly once by whoever owns the transaction boundary.
type TransactionContext struct {
	mu        sync.Mutex
	items     map[string]*txItem
	committed []func(ctx context.Context) error
	aborted   []func(ctx context.Context)
	disposed  []func()
	state     txState
	released  bool
}

// NewTransactionContext creates an active transaction context.
func NewTransactionContext() *TransactionContext {
	return &TransactionContext{
		items: make(map[string]*txItem),
	}
}

// GetOrAdd returns the value stored under key, creating it with factory
// on first use. The factory runs outside the context lock and may
// register additional callbacks.
func (t *TransactionContext) GetOrAdd(key string, factory func() any) any {
	t.mu.Lock()
	item, ok := t.items[key]
	if !ok {
		item = &txItem{factory: factory}
		t.items[key] = item
	}
	t.mu.Unlock()

	item.once.Do(func() {
		item.value = item.factory()
		item.factory = nil
	})
	return item.value
}

// OnCommitted registers a commit callback.
func (t *TransactionContext) OnCommitted(fn func(ctx context.Context) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.committed = append(t.committed, fn)
}

// OnAborted registers an abort callback.
func (t *TransactionContext) OnAborted(fn func(ctx context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aborted = append(t.aborted, fn)
}

// OnDisposed registers a dispose callback.
func (t *TransactionContext) OnDisposed(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disposed = append(t.disposed, fn)
}

// Commit runs the commit callbacks in registration order. The first
// callback error aborts the remainder and is returned to the caller.
func (t *TransactionContext) Commit(ctx context.Context) error {
	t.mu.Lock()
	if t.state == txCommitted {
		t.mu.Unlock()
		return fmt.Errorf("transaction already committed")
	}
	if t.state == txAborted {
		t.mu.Unlock()
		return fmt.Errorf("transaction already aborted")
	}
	t.state = txCommitted
	callbacks := t.committed
	t.committed = nil
	t.mu.Unlock()

	for _, fn := range callbacks {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("transaction commit failed: %w", err)
		}
	}
	return nil
}

// Abort runs the abort callbacks in registration order. Aborting an
// already-aborted transaction is a no-op; aborting a committed one is
// an error.
func (t *TransactionContext) Abort(ctx context.Context) error {
	t.mu.Lock()
	if t.state == txCommitted {
		t.mu.Unlock()
		return fmt.Errorf("transaction already committed")
	}
	if t.state == txAborted {
		t.mu.Unlock()
		return nil
	}
	t.state = txAborted
	callbacks := t.aborted
	t.aborted = nil
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn(ctx)
	}
	return nil
}

// Dispose runs the dispose callbacks in registration order. Dispose is
// idempotent and must be called after the transaction outcome is
// decided.
func (t *TransactionContext) Dispose() {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	callbacks := t.disposed
	t.disposed = nil
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}
