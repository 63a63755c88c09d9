package engine

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/flagdeck/flagdeck/internal/bucket"
	"github.com/flagdeck/flagdeck/internal/store"
)

// resolveTargets scans a flag's targeting rules in priority order and returns
// a decisive result for the first matching rule, or nil when no rule matched
// so evaluation falls through to the global rollout.
//
// A rule that matches on type/value but whose subject bucket exceeds the
// rule's own percentage gate is skipped, and scanning continues to
// lower-priority rules. It does not short-circuit the whole engine; that
// policy is deliberate and pinned by tests.
func resolveTargets(flag *store.Flag, ectx *Context) *Result {
	if len(flag.Targets) == 0 {
		return nil
	}

	targets := make([]store.Target, len(flag.Targets))
	copy(targets, flag.Targets)
	// Stable sort: equal priorities keep the store's return order
	// (created_at, then id).
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].Priority > targets[j].Priority
	})

	subject := subjectID(ectx)
	for _, target := range targets {
		if !target.Enabled {
			continue
		}
		if !matchesTarget(&target, ectx) {
			continue
		}
		if target.Percentage != nil {
			if bucket.Assign(subject, flag.Key) > *target.Percentage {
				continue
			}
		}

		result := &Result{
			Enabled: true,
			Reason:  fmt.Sprintf("target %s=%q matched (priority %d)", target.Type, target.Value, target.Priority),
		}
		if target.VariantKey != nil {
			result.Variant = *target.VariantKey
			result.Value = variantValue(flag, *target.VariantKey)
			result.Reason += fmt.Sprintf(", variant %q pinned", *target.VariantKey)
		}
		return result
	}
	return nil
}

func matchesTarget(target *store.Target, ectx *Context) bool {
	switch target.Type {
	case store.TargetUser:
		return ectx.UserID != "" && ectx.UserID == target.Value
	case store.TargetRole:
		return slices.Contains(ectx.Roles, target.Value)
	case store.TargetEmail:
		return ectx.Email != "" && strings.EqualFold(ectx.Email, target.Value)
	case store.TargetOrganization:
		return ectx.OrganizationID != "" && ectx.OrganizationID == target.Value
	case store.TargetGroup:
		return slices.Contains(ectx.Groups, target.Value)
	case store.TargetCustom:
		key, want, ok := strings.Cut(target.Value, "=")
		if !ok {
			return false
		}
		got, present := ectx.Attributes[key]
		return present && got == want
	default:
		return false
	}
}

// subjectID picks the identity used for bucketing: userId, then email, then
// the fixed anonymous marker. The fallback order is part of the stickiness
// contract and must not vary per call site.
func subjectID(ectx *Context) string {
	if ectx.UserID != "" {
		return ectx.UserID
	}
	if ectx.Email != "" {
		return ectx.Email
	}
	return bucket.Anonymous
}
