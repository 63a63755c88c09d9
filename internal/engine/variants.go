package engine

import (
	"encoding/json"
	"fmt"

	"github.com/flagdeck/flagdeck/internal/bucket"
	"github.com/flagdeck/flagdeck/internal/store"
)

// selectVariant performs weighted selection among a multivariate flag's
// variants. Invoked only for flags that passed targeting/rollout without a
// pinned variant.
//
// With all weights zero the bucket range is split evenly across variants.
// Otherwise the subject's bucket is projected onto the cumulative weight
// scale and the first variant whose cumulative weight reaches the threshold
// wins; a rounding edge that exhausts the scan falls back to the first
// variant.
func selectVariant(flag *store.Flag, ectx *Context) Result {
	if len(flag.Variants) == 0 {
		return Result{Enabled: true, Reason: "multivariate flag with no variants"}
	}

	subject := subjectID(ectx)
	b := bucket.Assign(subject, flag.Key)

	totalWeight := 0
	for _, v := range flag.Variants {
		totalWeight += v.Weight
	}

	if totalWeight == 0 {
		idx := b * len(flag.Variants) / 100
		if idx >= len(flag.Variants) {
			idx = len(flag.Variants) - 1
		}
		chosen := flag.Variants[idx]
		return Result{
			Enabled: true,
			Variant: chosen.Key,
			Value:   parseVariantValue(chosen.Value),
			Reason:  fmt.Sprintf("variant %q selected (equal distribution)", chosen.Key),
		}
	}

	threshold := float64(b) / 100 * float64(totalWeight)
	cumulative := 0
	for _, v := range flag.Variants {
		cumulative += v.Weight
		if float64(cumulative) >= threshold {
			return Result{
				Enabled: true,
				Variant: v.Key,
				Value:   parseVariantValue(v.Value),
				Reason:  fmt.Sprintf("variant %q selected (weighted)", v.Key),
			}
		}
	}

	first := flag.Variants[0]
	return Result{
		Enabled: true,
		Variant: first.Key,
		Value:   parseVariantValue(first.Value),
		Reason:  fmt.Sprintf("variant %q selected (weighted fallback)", first.Key),
	}
}

// variantValue resolves a variant's parsed value by key, nil when absent.
func variantValue(flag *store.Flag, key string) any {
	for _, v := range flag.Variants {
		if v.Key == key {
			return parseVariantValue(v.Value)
		}
	}
	return nil
}

// parseVariantValue attempts to decode the stored value as JSON so numbers,
// booleans and objects come back structured; anything unparsable is returned
// as the raw string.
func parseVariantValue(raw string) any {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	return parsed
}
