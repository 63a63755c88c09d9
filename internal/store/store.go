package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a flag does not exist or is soft-deleted.
var ErrNotFound = errors.New("flag not found")

// ErrAlreadyExists is returned when creating a flag whose key is taken.
var ErrAlreadyExists = errors.New("flag already exists")

// FlagType determines how a flag's value resolves during evaluation.
type FlagType string

const (
	TypeBoolean      FlagType = "boolean"
	TypeString       FlagType = "string"
	TypeNumber       FlagType = "number"
	TypeJSON         FlagType = "json"
	TypeMultivariate FlagType = "multivariate"
)

// TargetType classifies what a targeting rule matches against.
type TargetType string

const (
	TargetUser         TargetType = "user"
	TargetRole         TargetType = "role"
	TargetEmail        TargetType = "email"
	TargetOrganization TargetType = "organization"
	TargetGroup        TargetType = "group"
	TargetCustom       TargetType = "custom"
)

// Flag is a feature flag definition with its variants and targeting rules.
// The Key is immutable and unique; deletion is always soft (DeletedAt set)
// so historical audit entries keep a valid reference.
type Flag struct {
	ID                uuid.UUID  `json:"id"`
	Key               string     `json:"key"`
	Description       string     `json:"description,omitempty"`
	Enabled           bool       `json:"enabled"`
	Type              FlagType   `json:"type"`
	RolloutPercentage int        `json:"rolloutPercentage"`
	Variants          []Variant  `json:"variants,omitempty"`
	Targets           []Target   `json:"targets,omitempty"`
	CreatedBy         string     `json:"createdBy,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	DeletedAt         *time.Time `json:"deletedAt,omitempty"`
}

// Variant is one named payload a flag can resolve to. Value is opaque here;
// the evaluation engine parses it as JSON and falls back to the raw string.
// Stores return variants in definition order (CreatedAt, then ID), which
// decides the default variant and the weighted scan order.
type Variant struct {
	ID        uuid.UUID `json:"id"`
	FlagID    uuid.UUID `json:"flagId"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Weight    int       `json:"weight"`
	CreatedAt time.Time `json:"createdAt"`
}

// Target is an explicit override rule. Higher Priority evaluates first; ties
// break by CreatedAt then ID ascending, the order stores return rows in.
type Target struct {
	ID         uuid.UUID  `json:"id"`
	FlagID     uuid.UUID  `json:"flagId"`
	Type       TargetType `json:"targetType"`
	Value      string     `json:"targetValue"`
	Enabled    bool       `json:"enabled"`
	Percentage *int       `json:"percentage,omitempty"`
	VariantKey *string    `json:"variantKey,omitempty"`
	Priority   int        `json:"priority"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// UpdateParams carries the mutable flag fields for UpdateFlag. Nil pointers
// leave the stored value untouched.
type UpdateParams struct {
	Key               string
	Description       *string
	Enabled           *bool
	Type              *FlagType
	RolloutPercentage *int
}

// Store is the persistence boundary for flag, variant and target rows.
// Implementations must be safe for concurrent use. Single-row reads and
// writes are strongly consistent; no cross-row transaction is required.
type Store interface {
	// GetFlagByKey returns the flag with its variants and targets.
	// Soft-deleted flags are invisible: ErrNotFound.
	GetFlagByKey(ctx context.Context, key string) (*Flag, error)

	// ListFlags returns all flags, excluding soft-deleted ones unless
	// includeDeleted is set. Ordered by key.
	ListFlags(ctx context.Context, includeDeleted bool) ([]Flag, error)

	// CreateFlag persists a new flag. Returns ErrAlreadyExists when the key
	// is taken by a live flag.
	CreateFlag(ctx context.Context, flag Flag) (*Flag, error)

	// UpdateFlag applies params to an existing flag and bumps UpdatedAt.
	UpdateFlag(ctx context.Context, params UpdateParams) (*Flag, error)

	// SoftDeleteFlag sets the deletion timestamp. The row and its children
	// remain for audit integrity.
	SoftDeleteFlag(ctx context.Context, key string) error

	// CreateVariant appends a variant to a flag.
	CreateVariant(ctx context.Context, variant Variant) (*Variant, error)

	// CreateTarget appends a targeting rule to a flag.
	CreateTarget(ctx context.Context, target Target) (*Target, error)

	// Close releases any resources held by the store.
	Close() error
}
