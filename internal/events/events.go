// Package events carries notifications about queue transitions to downstream consumers.
package events

import (
	"context"
	"time"
)

const (
	TopicRecordCommitted = "record.committed"
	TopicExportCompleted = "export.completed"
)

// Publisher delivers one event. Implementations must be safe to call after a failed publish.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// RecordCommitted is emitted after a record reached the output queue.
type RecordCommitted struct {
	RecordID     string    `json:"record_id"`
	SessionID    string    `json:"session_id,omitempty"`
	Total        string    `json:"total"`
	LineTotal    string    `json:"line_total"`
	LineItems    int       `json:"line_items"`
	ClearedDates []string  `json:"cleared_dates,omitempty"`
	Archived     bool      `json:"archived"`
	CommittedAt  time.Time `json:"committed_at"`
}

// ExportCompleted is emitted after a bulk export cleared the output queue.
type ExportCompleted struct {
	BatchID    string    `json:"batch_id"`
	RecordIDs  []string  `json:"record_ids"`
	Bytes      int       `json:"bytes"`
	ExportedAt time.Time `json:"exported_at"`
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
