// Package flow binds execution contexts to logical flows of control.
//
// A logical flow is identified by a context.Context chain rather than by a
// goroutine or OS thread. A caller starts a flow with Fork or Bind and passes
// the returned context along; every goroutine that carries that context sees
// the same slot, and flows started from different contexts never share state.
package flow

import (
	"context"
	"sync"

	"github.com/ethereum-optimism/infra/op-allure/execctx"
)

// Slot is the cell holding the current execution context of one flow.
// A captured Slot can be updated out of band, e.g. from a framework event
// handler that runs on another goroutine.
type Slot struct {
	mu      sync.Mutex
	current execctx.Context
}

// NewSlot creates a slot holding c
func NewSlot(c execctx.Context) *Slot {
	return &Slot{current: c}
}

// Load returns the current snapshot
func (s *Slot) Load() execctx.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Store replaces the current snapshot, e.g. to restore one captured earlier
func (s *Slot) Store(c execctx.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = c
}

// Apply runs a transition against the slot and persists its result.
// If the transition fails the slot keeps its previous value.
func (s *Slot) Apply(fn func(execctx.Context) (execctx.Context, error)) (execctx.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.current)
	if err != nil {
		return s.current, err
	}
	s.current = next
	return next, nil
}

type slotKey struct{}

// Store hands out slots for flows. Contexts that were never bound to a flow
// share the store's root slot, so two unrelated contexts such as two
// context.WithCancel(context.Background()) values see the same flow.
type Store struct {
	root *Slot

	// OnUnbound is called once, the first time a context other than
	// context.Background or context.TODO falls back to the root slot
	OnUnbound   func()
	unboundOnce sync.Once
}

// NewStore creates a store with an empty root flow
func NewStore() *Store {
	return &Store{root: NewSlot(execctx.Empty())}
}

// Fork starts a new flow whose initial value is the current snapshot of the
// parent flow. Changes made in the new flow never reach the parent.
func (s *Store) Fork(ctx context.Context) context.Context {
	return s.Bind(ctx, s.Current(ctx))
}

// Bind starts a new flow holding c
func (s *Store) Bind(ctx context.Context, c execctx.Context) context.Context {
	return context.WithValue(ctx, slotKey{}, NewSlot(c))
}

// Attach joins ctx to an existing flow, e.g. one whose slot was captured
// by a framework hook running elsewhere
func (s *Store) Attach(ctx context.Context, slot *Slot) context.Context {
	return context.WithValue(ctx, slotKey{}, slot)
}

// Slot returns the slot of the flow ctx belongs to
func (s *Store) Slot(ctx context.Context) *Slot {
	if ctx != nil {
		if slot, ok := ctx.Value(slotKey{}).(*Slot); ok {
			return slot
		}
		if ctx != context.Background() && ctx != context.TODO() && s.OnUnbound != nil {
			s.unboundOnce.Do(s.OnUnbound)
		}
	}
	return s.root
}

// Current returns the snapshot of the flow ctx belongs to.
// A flow that never changed its context sees an empty one.
func (s *Store) Current(ctx context.Context) execctx.Context {
	return s.Slot(ctx).Load()
}

// Update applies a transition to the flow ctx belongs to
func (s *Store) Update(ctx context.Context, fn func(execctx.Context) (execctx.Context, error)) (execctx.Context, error) {
	return s.Slot(ctx).Apply(fn)
}

// Restore rebinds the flow ctx belongs to to a previously captured snapshot
func (s *Store) Restore(ctx context.Context, c execctx.Context) {
	s.Slot(ctx).Store(c)
}

// RunInContext runs action in a new flow seeded with c and returns the value
// the flow holds once action returns, including on error, so that the caller
// can persist it across an asynchronous boundary.
func (s *Store) RunInContext(ctx context.Context, c execctx.Context, action func(ctx context.Context) error) (execctx.Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	flowCtx := s.Bind(ctx, c)
	err := action(flowCtx)
	return s.Current(flowCtx), err
}
