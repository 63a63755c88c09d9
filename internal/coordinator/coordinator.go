// Package coordinator orchestrates flag lifecycle operations across the
// persistent store, the distributed cache and the audit trail. Every mutation
// follows the same sequence: validate, persist, evict the local cache entry,
// broadcast the invalidation, record the audit entry. The trail and the
// broadcast are best-effort; persistence alone decides whether a mutation
// succeeds.
package coordinator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/flagdeck/flagdeck/internal/audit"
	"github.com/flagdeck/flagdeck/internal/cache"
	"github.com/flagdeck/flagdeck/internal/engine"
	"github.com/flagdeck/flagdeck/internal/store"
	"github.com/flagdeck/flagdeck/internal/telemetry"
	"github.com/flagdeck/flagdeck/internal/validation"
)

// Meta identifies who performed a mutation, recorded on the audit trail.
type Meta struct {
	ActorID   string
	IPAddress string
	UserAgent string
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	store  store.Store
	cache  *cache.Cache
	trail  *audit.Trail
	logger zerolog.Logger
}

// New wires a coordinator. All collaborators are required.
func New(st store.Store, c *cache.Cache, trail *audit.Trail, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:  st,
		cache:  c,
		trail:  trail,
		logger: logger.With().Str("component", "coordinator").Logger(),
	}
}

// Start subscribes to the invalidation bus. Evicted entries are re-warmed
// from the store so the first read after a remote mutation is already fresh.
func (c *Coordinator) Start(ctx context.Context) error {
	return c.cache.SubscribeToInvalidations(ctx, func(key string) {
		flag, err := c.store.GetFlagByKey(ctx, key)
		if err != nil {
			// Deleted flags have nothing to re-warm.
			return
		}
		c.cache.Set(ctx, key, flag)
	})
}

// GetFlag returns the flag for key, reading through the cache.
func (c *Coordinator) GetFlag(ctx context.Context, key string) (*store.Flag, error) {
	if flag := c.cache.Get(ctx, key); flag != nil {
		return flag, nil
	}

	flag, err := c.store.GetFlagByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, flag)
	return flag, nil
}

// ListFlags returns all flags straight from the store.
func (c *Coordinator) ListFlags(ctx context.Context, includeDeleted bool) ([]store.Flag, error) {
	return c.store.ListFlags(ctx, includeDeleted)
}

// CreateFlag validates and persists a new flag with its variants and
// targeting rules.
func (c *Coordinator) CreateFlag(ctx context.Context, flag store.Flag, meta Meta) (*store.Flag, error) {
	if err := validationErr(validation.ValidateFlag(flagParams(&flag))); err != nil {
		return nil, err
	}

	variants, targets := flag.Variants, flag.Targets
	flag.Variants, flag.Targets = nil, nil
	flag.CreatedBy = meta.ActorID

	created, err := c.store.CreateFlag(ctx, flag)
	if err != nil {
		return nil, err
	}
	for _, variant := range variants {
		variant.FlagID = created.ID
		if _, err := c.store.CreateVariant(ctx, variant); err != nil {
			return nil, fmt.Errorf("create variant %q: %w", variant.Key, err)
		}
	}
	for _, target := range targets {
		target.FlagID = created.ID
		if _, err := c.store.CreateTarget(ctx, target); err != nil {
			return nil, fmt.Errorf("create target %q: %w", target.Value, err)
		}
	}
	created, err = c.store.GetFlagByKey(ctx, created.Key)
	if err != nil {
		return nil, err
	}

	c.afterMutation(ctx, created.Key)
	c.record(created, audit.ActionCreated, meta, map[string]any{
		"enabled":           created.Enabled,
		"type":              string(created.Type),
		"rolloutPercentage": created.RolloutPercentage,
	})
	return created, nil
}

// UpdateFlag applies the non-nil fields of params to an existing flag.
func (c *Coordinator) UpdateFlag(ctx context.Context, params store.UpdateParams, meta Meta) (*store.Flag, error) {
	result := validation.NewValidationResult()
	if params.Type != nil {
		result.Merge(validation.ValidateFlagType(string(*params.Type)))
	}
	if params.RolloutPercentage != nil {
		result.Merge(validation.ValidateRollout(*params.RolloutPercentage))
	}
	if params.Description != nil {
		result.Merge(validation.ValidateDescription(*params.Description))
	}
	if err := validationErr(result); err != nil {
		return nil, err
	}

	updated, err := c.store.UpdateFlag(ctx, params)
	if err != nil {
		return nil, err
	}

	c.afterMutation(ctx, updated.Key)
	c.record(updated, updateAction(params), meta, updatePayload(params))
	return updated, nil
}

// ToggleFlag flips the enabled bit.
func (c *Coordinator) ToggleFlag(ctx context.Context, key string, enabled bool, meta Meta) (*store.Flag, error) {
	updated, err := c.store.UpdateFlag(ctx, store.UpdateParams{Key: key, Enabled: &enabled})
	if err != nil {
		return nil, err
	}

	c.afterMutation(ctx, key)
	action := audit.ActionDisabled
	if enabled {
		action = audit.ActionEnabled
	}
	c.record(updated, action, meta, nil)
	return updated, nil
}

// DeleteFlag soft-deletes a flag. Its audit trail stays queryable by key.
func (c *Coordinator) DeleteFlag(ctx context.Context, key string, meta Meta) error {
	flag, err := c.store.GetFlagByKey(ctx, key)
	if err != nil {
		return err
	}
	if err := c.store.SoftDeleteFlag(ctx, key); err != nil {
		return err
	}

	c.afterMutation(ctx, key)
	c.record(flag, audit.ActionDeleted, meta, nil)
	return nil
}

// AddVariant appends a variant to an existing flag.
func (c *Coordinator) AddVariant(ctx context.Context, flagKey string, variant store.Variant, meta Meta) (*store.Variant, error) {
	flag, err := c.store.GetFlagByKey(ctx, flagKey)
	if err != nil {
		return nil, err
	}

	params := make([]validation.VariantParams, 0, len(flag.Variants)+1)
	for _, v := range flag.Variants {
		params = append(params, validation.VariantParams{Key: v.Key, Weight: v.Weight})
	}
	params = append(params, validation.VariantParams{Key: variant.Key, Weight: variant.Weight})
	if err := validationErr(validation.ValidateVariants(params)); err != nil {
		return nil, err
	}

	variant.FlagID = flag.ID
	created, err := c.store.CreateVariant(ctx, variant)
	if err != nil {
		return nil, err
	}

	c.afterMutation(ctx, flagKey)
	c.record(flag, audit.ActionVariantAdded, meta, map[string]any{
		"variantKey": created.Key,
		"weight":     created.Weight,
	})
	return created, nil
}

// AddTarget appends a targeting rule to an existing flag.
func (c *Coordinator) AddTarget(ctx context.Context, flagKey string, target store.Target, meta Meta) (*store.Target, error) {
	flag, err := c.store.GetFlagByKey(ctx, flagKey)
	if err != nil {
		return nil, err
	}

	variantKeys := make(map[string]bool, len(flag.Variants))
	for _, v := range flag.Variants {
		variantKeys[v.Key] = true
	}
	params := validation.TargetParams{
		Type:       string(target.Type),
		Value:      target.Value,
		Percentage: target.Percentage,
		VariantKey: target.VariantKey,
		Priority:   target.Priority,
	}
	if err := validationErr(validation.ValidateTarget(0, params, variantKeys)); err != nil {
		return nil, err
	}

	target.FlagID = flag.ID
	created, err := c.store.CreateTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	c.afterMutation(ctx, flagKey)
	c.record(flag, audit.ActionTargetAdded, meta, map[string]any{
		"targetType":  string(created.Type),
		"targetValue": created.Value,
		"priority":    created.Priority,
	})
	return created, nil
}

// Evaluate resolves key for the given evaluation context. A missing or
// soft-deleted flag returns store.ErrNotFound so callers can distinguish
// "no such flag" from "flag is off".
func (c *Coordinator) Evaluate(ctx context.Context, key string, ectx *engine.Context) (engine.Result, error) {
	flag, err := c.GetFlag(ctx, key)
	if err != nil {
		return engine.Result{}, err
	}

	result := engine.Evaluate(flag, ectx)
	outcome := "disabled"
	if result.Enabled {
		outcome = "enabled"
	}
	telemetry.Evaluations.WithLabelValues(outcome).Inc()
	return result, nil
}

// AuditForFlag returns the trail for one flag key, newest first.
func (c *Coordinator) AuditForFlag(ctx context.Context, flagKey string, limit int) ([]audit.Entry, error) {
	return c.trail.ForFlag(ctx, flagKey, limit)
}

// AuditByActor returns entries recorded by one actor, newest first.
func (c *Coordinator) AuditByActor(ctx context.Context, actorID string, limit int) ([]audit.Entry, error) {
	return c.trail.ByActor(ctx, actorID, limit)
}

// AuditRecent returns the latest entries across all flags.
func (c *Coordinator) AuditRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	return c.trail.Recent(ctx, limit)
}

// afterMutation evicts the local cache entry and broadcasts the key so every
// other instance evicts too.
func (c *Coordinator) afterMutation(ctx context.Context, key string) {
	c.cache.Invalidate(ctx, key)
	c.cache.PublishInvalidation(ctx, key)
}

func (c *Coordinator) record(flag *store.Flag, action string, meta Meta, payload map[string]any) {
	entry := audit.Entry{
		FlagID:    flag.ID,
		FlagKey:   flag.Key,
		Action:    action,
		Payload:   payload,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}
	if meta.ActorID != "" {
		actor := meta.ActorID
		entry.ActorID = &actor
	}
	c.trail.Record(entry)
}

func flagParams(flag *store.Flag) validation.FlagParams {
	params := validation.FlagParams{
		Key:               flag.Key,
		Description:       flag.Description,
		Type:              string(flag.Type),
		RolloutPercentage: flag.RolloutPercentage,
	}
	for _, v := range flag.Variants {
		params.Variants = append(params.Variants, validation.VariantParams{Key: v.Key, Weight: v.Weight})
	}
	for _, t := range flag.Targets {
		params.Targets = append(params.Targets, validation.TargetParams{
			Type:       string(t.Type),
			Value:      t.Value,
			Percentage: t.Percentage,
			VariantKey: t.VariantKey,
			Priority:   t.Priority,
		})
	}
	return params
}

// updateAction picks the most specific audit action for an update.
func updateAction(params store.UpdateParams) string {
	switch {
	case params.RolloutPercentage != nil && params.Enabled == nil && params.Type == nil && params.Description == nil:
		return audit.ActionRolloutChanged
	case params.Enabled != nil && *params.Enabled && params.RolloutPercentage == nil && params.Type == nil && params.Description == nil:
		return audit.ActionEnabled
	case params.Enabled != nil && !*params.Enabled && params.RolloutPercentage == nil && params.Type == nil && params.Description == nil:
		return audit.ActionDisabled
	default:
		return audit.ActionUpdated
	}
}

func updatePayload(params store.UpdateParams) map[string]any {
	payload := make(map[string]any)
	if params.Description != nil {
		payload["description"] = *params.Description
	}
	if params.Enabled != nil {
		payload["enabled"] = *params.Enabled
	}
	if params.Type != nil {
		payload["type"] = string(*params.Type)
	}
	if params.RolloutPercentage != nil {
		payload["rolloutPercentage"] = *params.RolloutPercentage
	}
	if len(payload) == 0 {
		return nil
	}
	return payload
}
