package preview

import "github.com/joseph-ayodele/claims-review/internal/common"

var (
	// ErrDocumentNotFound covers missing, unreadable, empty and corrupt documents alike.
	ErrDocumentNotFound = common.NewAppError("DOCUMENT_NOT_FOUND", "document missing or unreadable", common.ErrNotFound)
	ErrInvalidRegion    = common.NewAppError("INVALID_REGION", "unknown region name", common.ErrInvalidInput)
	// ErrRendererUnavailable means the rasterizer itself could not be started.
	ErrRendererUnavailable = common.NewAppError("RENDERER_UNAVAILABLE", "pdf rasterizer is not available", common.ErrInternal)
)
