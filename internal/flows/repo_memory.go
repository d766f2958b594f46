package flows

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryRepo stores flows in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Flow
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Flow)}
}

// Create stores a new flow at version 1.
func (r *MemoryRepo) Create(ctx context.Context, flow Flow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[flow.ID]; exists {
		return ErrConflict
	}
	flow.Version = 1
	r.byID[flow.ID] = clone(flow)
	return nil
}

// Get returns a copy of the stored flow.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Flow, error) {
	if err := ctx.Err(); err != nil {
		return Flow{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	flow, ok := r.byID[id]
	if !ok {
		return Flow{}, ErrNotFound
	}
	return clone(flow), nil
}

// Save replaces the flow when versions match.
func (r *MemoryRepo) Save(ctx context.Context, flow Flow) (Flow, error) {
	if err := ctx.Err(); err != nil {
		return Flow{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[flow.ID]
	if !ok {
		return Flow{}, ErrNotFound
	}
	if current.Version != flow.Version {
		return Flow{}, ErrConflict
	}
	flow.Version++
	r.byID[flow.ID] = clone(flow)
	return flow, nil
}

// Delete removes a flow.
func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

// DeleteExpired removes and returns expired flows.
func (r *MemoryRepo) DeleteExpired(ctx context.Context, now time.Time) ([]Flow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Flow
	for id, flow := range r.byID {
		if flow.expired(now) {
			out = append(out, flow)
			delete(r.byID, id)
		}
	}
	return out, nil
}

// clone deep-copies a flow so callers never share slices with the store.
func clone(f Flow) Flow {
	data, err := json.Marshal(f)
	if err != nil {
		return f
	}
	var out Flow
	if err := json.Unmarshal(data, &out); err != nil {
		return f
	}
	return out
}

var _ Repo = (*MemoryRepo)(nil)
