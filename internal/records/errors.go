package records

import "github.com/joseph-ayodele/claims-review/internal/common"

var (
	ErrRecordNotFound  = common.NewAppError("RECORD_NOT_FOUND", "record not found", common.ErrNotFound)
	ErrMalformedRecord = common.NewAppError("MALFORMED_RECORD", "record is not valid structured data", common.ErrInvalidInput)
	ErrInvalidID       = common.NewAppError("INVALID_RECORD_ID", "record id must be a plain filename stem", common.ErrInvalidInput)
	// ErrArchive means the output write took effect but the source could not be archived.
	ErrArchive = common.NewAppError("ARCHIVE_FAILED", "committed record could not be archived", common.ErrInternal)
)
