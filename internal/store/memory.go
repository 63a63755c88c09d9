package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of the Store interface, guarded
// by an RWMutex. Suitable for development, testing and single-instance runs.
type MemoryStore struct {
	mu    sync.RWMutex
	flags map[string]*Flag // key -> Flag, including soft-deleted rows
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flags: make(map[string]*Flag)}
}

// GetFlagByKey returns a copy of the flag. Soft-deleted flags are invisible.
func (m *MemoryStore) GetFlagByKey(ctx context.Context, key string) (*Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, ok := m.flags[key]
	if !ok || flag.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return copyFlag(flag), nil
}

// ListFlags returns flags ordered by key.
func (m *MemoryStore) ListFlags(ctx context.Context, includeDeleted bool) ([]Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Flag, 0, len(m.flags))
	for _, flag := range m.flags {
		if flag.DeletedAt != nil && !includeDeleted {
			continue
		}
		result = append(result, *copyFlag(flag))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// CreateFlag persists a new flag, assigning ID and timestamps.
func (m *MemoryStore) CreateFlag(ctx context.Context, flag Flag) (*Flag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.flags[flag.Key]; ok && existing.DeletedAt == nil {
		return nil, ErrAlreadyExists
	}

	now := time.Now().UTC()
	flag.ID = uuid.New()
	flag.CreatedAt = now
	flag.UpdatedAt = now
	flag.DeletedAt = nil

	m.flags[flag.Key] = copyFlag(&flag)
	return copyFlag(&flag), nil
}

// UpdateFlag applies the non-nil fields of params.
func (m *MemoryStore) UpdateFlag(ctx context.Context, params UpdateParams) (*Flag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag, ok := m.flags[params.Key]
	if !ok || flag.DeletedAt != nil {
		return nil, ErrNotFound
	}

	if params.Description != nil {
		flag.Description = *params.Description
	}
	if params.Enabled != nil {
		flag.Enabled = *params.Enabled
	}
	if params.Type != nil {
		flag.Type = *params.Type
	}
	if params.RolloutPercentage != nil {
		flag.RolloutPercentage = *params.RolloutPercentage
	}
	flag.UpdatedAt = time.Now().UTC()

	return copyFlag(flag), nil
}

// SoftDeleteFlag sets DeletedAt; the row stays for audit integrity.
func (m *MemoryStore) SoftDeleteFlag(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag, ok := m.flags[key]
	if !ok || flag.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	flag.DeletedAt = &now
	flag.UpdatedAt = now
	return nil
}

// CreateVariant appends a variant to its flag.
func (m *MemoryStore) CreateVariant(ctx context.Context, variant Variant) (*Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag := m.findByID(variant.FlagID)
	if flag == nil {
		return nil, ErrNotFound
	}

	variant.ID = uuid.New()
	variant.CreatedAt = time.Now().UTC()
	flag.Variants = append(flag.Variants, variant)
	flag.UpdatedAt = variant.CreatedAt

	v := variant
	return &v, nil
}

// CreateTarget appends a targeting rule to its flag. Targets keep insertion
// order (CreatedAt, then ID), the declared tie-break for equal priorities.
func (m *MemoryStore) CreateTarget(ctx context.Context, target Target) (*Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag := m.findByID(target.FlagID)
	if flag == nil {
		return nil, ErrNotFound
	}

	target.ID = uuid.New()
	target.CreatedAt = time.Now().UTC()
	flag.Targets = append(flag.Targets, target)
	flag.UpdatedAt = target.CreatedAt

	t := target
	return &t, nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) findByID(id uuid.UUID) *Flag {
	for _, flag := range m.flags {
		if flag.ID == id && flag.DeletedAt == nil {
			return flag
		}
	}
	return nil
}

// copyFlag deep-copies a flag so callers never alias store-owned slices.
func copyFlag(f *Flag) *Flag {
	out := *f
	if f.DeletedAt != nil {
		deleted := *f.DeletedAt
		out.DeletedAt = &deleted
	}
	out.Variants = append([]Variant(nil), f.Variants...)
	out.Targets = make([]Target, len(f.Targets))
	for i, t := range f.Targets {
		out.Targets[i] = t
		if t.Percentage != nil {
			p := *t.Percentage
			out.Targets[i].Percentage = &p
		}
		if t.VariantKey != nil {
			vk := *t.VariantKey
			out.Targets[i].VariantKey = &vk
		}
	}
	return &out
}
