package api

import (
	"context"
	"net/http"

	"github.com/flagdeck/flagdeck/internal/engine"
)

// Evaluator resolves a flag for a request context.
type Evaluator interface {
	Evaluate(ctx context.Context, key string, ectx *engine.Context) (engine.Result, error)
}

// FlagGate guards a route behind a feature flag. Requests are evaluated with
// identity taken from the X-User-ID and X-User-Email headers; when the flag
// resolves disabled the gate answers 503. FallbackOnError decides whether the
// gate opens or closes when the flag cannot be evaluated at all.
type FlagGate struct {
	FlagKey         string
	FallbackOnError bool
}

// Middleware builds the chi-compatible middleware for this gate.
func (g FlagGate) Middleware(eval Evaluator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ectx := &engine.Context{
				UserID: r.Header.Get("X-User-ID"),
				Email:  r.Header.Get("X-User-Email"),
			}

			result, err := eval.Evaluate(r.Context(), g.FlagKey, ectx)
			enabled := result.Enabled
			if err != nil {
				enabled = g.FallbackOnError
			}

			if !enabled {
				writeErrorResponse(w, r, http.StatusServiceUnavailable,
					NewErrorResponse(http.StatusServiceUnavailable, ErrCodeFeatureOff, "feature is not available"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
