package constants

// Extensions of the artifacts that share a record's filename stem.
const (
	RecordExt   = "json"
	DocumentExt = "pdf"
)

// Queue directory names under the data root.
const (
	FailsDir     = "fails"
	OutputDir    = "output"
	OriginalsDir = "originals"
	PDFsDir      = "pdfs"
)
