// Package validation provides validation rules for flag data and request parameters.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/flagdeck/flagdeck/internal/store"
)

const (
	// MaxKeyLength is the maximum length for flag keys
	MaxKeyLength = 64
	// MaxDescriptionLength is the maximum length for flag descriptions
	MaxDescriptionLength = 500
	// MinPercentage is the minimum rollout or target percentage
	MinPercentage = 0
	// MaxPercentage is the maximum rollout or target percentage
	MaxPercentage = 100
	// MaxVariantKeyLength is the maximum length for variant keys
	MaxVariantKeyLength = 64
	// MaxTargetValueLength is the maximum length for target values
	MaxTargetValueLength = 256
)

// keyPattern matches lowercase URL-safe slugs
var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidationResult holds the result of validation
type ValidationResult struct {
	Valid  bool
	Errors map[string]string
}

// NewValidationResult creates a new validation result
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:  true,
		Errors: make(map[string]string),
	}
}

// AddError adds a field error and marks the result as invalid
func (v *ValidationResult) AddError(field, message string) {
	v.Valid = false
	v.Errors[field] = message
}

// Merge combines another validation result into this one
func (v *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	for field, message := range other.Errors {
		v.AddError(field, message)
	}
}

// FlagParams contains the parameters for validating a flag
type FlagParams struct {
	Key               string
	Description       string
	Type              string
	RolloutPercentage int
	Variants          []VariantParams
	Targets           []TargetParams
}

// VariantParams contains the parameters for validating a variant
type VariantParams struct {
	Key    string
	Weight int
}

// TargetParams contains the parameters for validating a targeting rule
type TargetParams struct {
	Type       string
	Value      string
	Percentage *int
	VariantKey *string
	Priority   int
}

// ValidateFlag validates all flag fields and returns a validation result
func ValidateFlag(params FlagParams) *ValidationResult {
	result := NewValidationResult()

	result.Merge(ValidateKey(params.Key))
	result.Merge(ValidateDescription(params.Description))
	result.Merge(ValidateFlagType(params.Type))
	result.Merge(ValidateRollout(params.RolloutPercentage))
	result.Merge(ValidateVariants(params.Variants))

	variantKeys := make(map[string]bool, len(params.Variants))
	for _, v := range params.Variants {
		variantKeys[v.Key] = true
	}
	for i, target := range params.Targets {
		result.Merge(ValidateTarget(i, target, variantKeys))
	}

	return result
}

// ValidateKey validates a flag key
func ValidateKey(key string) *ValidationResult {
	result := NewValidationResult()
	key = strings.TrimSpace(key)

	if key == "" {
		result.AddError("key", "Key is required")
		return result
	}

	if utf8.RuneCountInString(key) > MaxKeyLength {
		result.AddError("key", "Key must not exceed 64 characters")
		return result
	}

	if !keyPattern.MatchString(key) {
		result.AddError("key", "Key must be a lowercase slug of letters, digits, underscores, and hyphens")
		return result
	}

	return result
}

// ValidateDescription validates a flag description
func ValidateDescription(description string) *ValidationResult {
	result := NewValidationResult()

	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		result.AddError("description", "Description must not exceed 500 characters")
	}

	return result
}

// ValidateFlagType validates the flag type enum
func ValidateFlagType(flagType string) *ValidationResult {
	result := NewValidationResult()

	switch store.FlagType(flagType) {
	case store.TypeBoolean, store.TypeString, store.TypeNumber,
		store.TypeJSON, store.TypeMultivariate:
	default:
		result.AddError("type", "Type must be one of: boolean, string, number, json, multivariate")
	}

	return result
}

// ValidateRollout validates a rollout percentage
func ValidateRollout(rollout int) *ValidationResult {
	result := NewValidationResult()

	if rollout < MinPercentage || rollout > MaxPercentage {
		result.AddError("rolloutPercentage", "Rollout percentage must be between 0 and 100")
	}

	return result
}

// ValidateVariants validates a variant set, including key uniqueness
func ValidateVariants(variants []VariantParams) *ValidationResult {
	result := NewValidationResult()

	seen := make(map[string]bool, len(variants))
	for i, variant := range variants {
		field := fmt.Sprintf("variants[%d]", i)

		key := strings.TrimSpace(variant.Key)
		if key == "" {
			result.AddError(field+".key", "Variant key is required")
			continue
		}
		if utf8.RuneCountInString(key) > MaxVariantKeyLength {
			result.AddError(field+".key", "Variant key must not exceed 64 characters")
		}
		if seen[key] {
			result.AddError(field+".key", fmt.Sprintf("Duplicate variant key %q", key))
		}
		seen[key] = true

		if variant.Weight < 0 {
			result.AddError(field+".weight", "Variant weight must not be negative")
		}
	}

	return result
}

// ValidateTarget validates a single targeting rule. variantKeys holds the
// flag's variant keys so a pinned variant can be checked for existence.
func ValidateTarget(index int, target TargetParams, variantKeys map[string]bool) *ValidationResult {
	result := NewValidationResult()
	field := fmt.Sprintf("targets[%d]", index)

	switch store.TargetType(target.Type) {
	case store.TargetUser, store.TargetRole, store.TargetEmail,
		store.TargetOrganization, store.TargetGroup, store.TargetCustom:
	default:
		result.AddError(field+".targetType", "Target type must be one of: user, role, email, organization, group, custom")
	}

	value := strings.TrimSpace(target.Value)
	if value == "" {
		result.AddError(field+".targetValue", "Target value is required")
	} else if utf8.RuneCountInString(value) > MaxTargetValueLength {
		result.AddError(field+".targetValue", "Target value must not exceed 256 characters")
	}

	if target.Percentage != nil {
		if *target.Percentage < MinPercentage || *target.Percentage > MaxPercentage {
			result.AddError(field+".percentage", "Target percentage must be between 0 and 100")
		}
	}

	if target.VariantKey != nil && !variantKeys[*target.VariantKey] {
		result.AddError(field+".variantKey", fmt.Sprintf("Variant %q does not exist on this flag", *target.VariantKey))
	}

	return result
}
