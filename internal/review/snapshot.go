package review

import (
	"fmt"

	"github.com/joseph-ayodele/claims-review/constants"
	"github.com/joseph-ayodele/claims-review/internal/entity"
)

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is the message shown to the reviewer after the last action.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Snapshot is an immutable view of a session, safe to hand to presentation code.
type Snapshot struct {
	SessionID string
	State     constants.SessionState
	Cursor    int
	Total     int
	RecordID  string
	// Record is a copy of the edit buffer; nil when the current record failed to load.
	Record *entity.Record
	Dirty  bool
	HasPDF bool
	Notice Notice
}

// CanPrevious and CanNext mirror the enabled state of the navigation buttons.
func (s Snapshot) CanPrevious() bool { return s.State == constants.StateReviewing && s.Cursor > 0 }

func (s Snapshot) CanNext() bool {
	return s.State == constants.StateReviewing && s.Cursor < s.Total-1
}

// Progress renders "File i of n", or an empty string when idle.
func (s Snapshot) Progress() string {
	if s.State != constants.StateReviewing {
		return ""
	}
	return fmt.Sprintf("File %d of %d", s.Cursor+1, s.Total)
}
