// Package storage holds the live result entities by id.
package storage

import (
	"fmt"
	"sync"

	"github.com/ethereum-optimism/infra/op-allure/types"
)

// Store is a concurrent id -> entity map shared by all flows.
// Removing an entity leaves a tombstone so that ids that were already handed to
// the writer keep failing loudly instead of looking like unknown ids.
type Store struct {
	mu       sync.RWMutex
	entities map[string]any
	removed  map[string]struct{}
}

// New creates an empty store
func New() *Store {
	return &Store{
		entities: make(map[string]any),
		removed:  make(map[string]struct{}),
	}
}

// Put registers entity under id. Registering an id that is live or was
// already removed fails.
func (s *Store) Put(id string, entity any) error {
	if id == "" {
		return fmt.Errorf("entity id cannot be empty")
	}
	if entity == nil {
		return types.NewArgumentError("entity")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, gone := s.removed[id]; gone {
		return types.NewNotFoundError(id, true)
	}
	if _, live := s.entities[id]; live {
		return types.NewInvalidStateError(fmt.Sprintf("entity %s is already tracked", id))
	}
	s.entities[id] = entity
	return nil
}

// Get returns the entity registered under id
func (s *Store) Get(id string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entity, ok := s.entities[id]; ok {
		return entity, nil
	}
	_, gone := s.removed[id]
	return nil, types.NewNotFoundError(id, gone)
}

// Remove deletes the entity registered under id and returns it
func (s *Store) Remove(id string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[id]
	if !ok {
		_, gone := s.removed[id]
		return nil, types.NewNotFoundError(id, gone)
	}
	delete(s.entities, id)
	s.removed[id] = struct{}{}
	return entity, nil
}

// Contains reports whether id is live
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entities[id]
	return ok
}

// Len returns the number of live entities
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entities)
}

// Get looks up id and checks that the entity has type T
func Get[T any](s *Store, id string) (T, error) {
	var zero T
	entity, err := s.Get(id)
	if err != nil {
		return zero, err
	}
	typed, ok := entity.(T)
	if !ok {
		return zero, fmt.Errorf("entity %s is a %T, not a %T", id, entity, zero)
	}
	return typed, nil
}

// Remove removes id after checking that the entity has type T.
// An entity of the wrong type is left in place.
func Remove[T any](s *Store, id string) (T, error) {
	var zero T

	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[id]
	if !ok {
		_, gone := s.removed[id]
		return zero, types.NewNotFoundError(id, gone)
	}
	typed, ok := entity.(T)
	if !ok {
		return zero, fmt.Errorf("entity %s is a %T, not a %T", id, entity, zero)
	}
	delete(s.entities, id)
	s.removed[id] = struct{}{}
	return typed, nil
}
