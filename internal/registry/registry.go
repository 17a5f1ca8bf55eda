// Package registry is an in-memory identity directory satisfying the
// external registry contract the engine depends on (spec §6): resolve
// an identity to (user_id, public_key, sealed_private_key), by id or by
// case-insensitive username. On-disk persistence of the registry is
// explicitly out of scope (spec §1 "external collaborators").
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/oksentinel/engine/internal/identity"
	"github.com/oksentinel/engine/internal/ocerrors"
)

// Registry is a thread-safe in-memory store of identity.User records.
type Registry struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*identity.User
	byUsername map[string]uuid.UUID // lowercased username -> id
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		byID:       make(map[uuid.UUID]*identity.User),
		byUsername: make(map[string]uuid.UUID),
	}
}

// AddUser registers a new user. Fails with InvalidInput if the
// username is already taken (case-insensitively).
func (r *Registry) AddUser(u *identity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(u.Username)
	if _, exists := r.byUsername[key]; exists {
		return fmt.Errorf("registry: username %q already taken: %w", u.Username, ocerrors.ErrInvalidInput)
	}

	r.byID[u.ID] = u
	r.byUsername[key] = u.ID
	return nil
}

// GetUser resolves a user by id.
func (r *Registry) GetUser(id uuid.UUID) (*identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("registry: user %s: %w", id, ocerrors.ErrNotFound)
	}
	return u, nil
}

// GetUserByUsername resolves a user by username, case-insensitively.
func (r *Registry) GetUserByUsername(username string) (*identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, fmt.Errorf("registry: username %q: %w", username, ocerrors.ErrNotFound)
	}
	return r.byID[id], nil
}

// ListUsers returns every registered user in no particular order.
func (r *Registry) ListUsers() []*identity.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*identity.User, 0, len(r.byID))
	for _, u := range r.byID {
		users = append(users, u)
	}
	return users
}
