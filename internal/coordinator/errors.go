package coordinator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flagdeck/flagdeck/internal/validation"
)

// ValidationError carries per-field messages for a rejected mutation. It is
// the only coordinator error besides store.ErrNotFound and
// store.ErrAlreadyExists that callers are expected to branch on.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("validation failed")
	for _, field := range fields {
		fmt.Fprintf(&b, "; %s: %s", field, e.Fields[field])
	}
	return b.String()
}

func validationErr(result *validation.ValidationResult) error {
	if result.Valid {
		return nil
	}
	return &ValidationError{Fields: result.Errors}
}
