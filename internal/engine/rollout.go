package engine

import (
	"fmt"

	"github.com/flagdeck/flagdeck/internal/bucket"
	"github.com/flagdeck/flagdeck/internal/store"
)

// resolveRollout applies the flag's global rollout percentage. It is only
// consulted when no targeting rule matched. Buckets are stable per
// (subject, flag) pair, so raising the percentage only ever adds subjects.
func resolveRollout(flag *store.Flag, ectx *Context) Result {
	switch flag.RolloutPercentage {
	case 100:
		return Result{Enabled: true, Reason: "full rollout (100%)"}
	case 0:
		return Result{Enabled: false, Reason: "zero rollout (0%)"}
	}

	subject := subjectID(ectx)
	b := bucket.Assign(subject, flag.Key)
	if b <= flag.RolloutPercentage {
		return Result{
			Enabled: true,
			Reason:  fmt.Sprintf("rollout: bucket %d within %d%%", b, flag.RolloutPercentage),
		}
	}
	return Result{
		Enabled: false,
		Reason:  fmt.Sprintf("rollout: bucket %d outside %d%%", b, flag.RolloutPercentage),
	}
}
