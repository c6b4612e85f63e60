package review

import (
	"fmt"

	"github.com/joseph-ayodele/claims-review/internal/common"
)

var (
	ErrNoActiveRecord = common.NewAppError("NO_ACTIVE_RECORD", "no record is open for review", common.ErrFailedPrecondition)
	ErrInvalidDelta   = common.NewAppError("INVALID_DELTA", "navigation delta must be -1 or +1", common.ErrInvalidInput)
	ErrInvalidField   = common.NewAppError("INVALID_FIELD", "field cannot be edited", common.ErrInvalidInput)
	ErrNoRenderer     = common.NewAppError("PREVIEW_DISABLED", "no preview renderer configured", common.ErrFailedPrecondition)
)

// LoadError reports a record the session moved to but could not read. The cursor
// still points at it and the snapshot notice carries the warning.
type LoadError struct {
	ID  string
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %s: %v", e.ID, e.Err) }

func (e *LoadError) Unwrap() error { return e.Err }
