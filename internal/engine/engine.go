// Package engine implements deterministic flag evaluation: priority-ordered
// targeting rules, percentage rollout and weighted variant selection, all
// derived from stable subject buckets. Evaluation is pure (no I/O, no shared
// mutable state) and safe to call from any number of goroutines.
package engine

import (
	"github.com/flagdeck/flagdeck/internal/store"
)

// Evaluate runs the full decision pipeline for one flag:
//
//  1. a globally disabled flag is terminal,
//  2. a matching targeting rule is terminal,
//  3. a rollout miss is terminal,
//  4. boolean flags resolve to plain enabled,
//  5. multivariate flags run weighted variant selection,
//  6. string/number/json flags resolve to the first variant's value, if any.
//
// Every branch sets Reason.
func Evaluate(flag *store.Flag, ectx *Context) Result {
	if ectx == nil {
		ectx = &Context{}
	}

	if !flag.Enabled {
		return Result{Enabled: false, Reason: "globally disabled"}
	}

	if result := resolveTargets(flag, ectx); result != nil {
		// A targeting match on a multivariate flag without a pinned
		// variant still gets a variant assigned.
		if flag.Type == store.TypeMultivariate && result.Variant == "" {
			selected := selectVariant(flag, ectx)
			selected.Reason = result.Reason + "; " + selected.Reason
			return selected
		}
		return *result
	}

	rollout := resolveRollout(flag, ectx)
	if !rollout.Enabled {
		return rollout
	}

	switch flag.Type {
	case store.TypeBoolean:
		return rollout
	case store.TypeMultivariate:
		return selectVariant(flag, ectx)
	default:
		// string / number / json: the first configured variant carries the
		// flag's value.
		if len(flag.Variants) > 0 {
			rollout.Value = parseVariantValue(flag.Variants[0].Value)
		}
		return rollout
	}
}
