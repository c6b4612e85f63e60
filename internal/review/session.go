// Package review implements the reviewer's session: a cursor over the fails
// queue, a single edit buffer for the record under the cursor, and the
// transitions that load, edit, reset and commit it.
//
// A Session is not safe for concurrent use; callers serialize access.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/claims-review/constants"
	"github.com/joseph-ayodele/claims-review/internal/common"
	"github.com/joseph-ayodele/claims-review/internal/entity"
	"github.com/joseph-ayodele/claims-review/internal/events"
	"github.com/joseph-ayodele/claims-review/internal/preview"
	"github.com/joseph-ayodele/claims-review/internal/records"
	"github.com/joseph-ayodele/claims-review/internal/validate"
)

// Store is the part of the record store a session drives.
type Store interface {
	ListPending(ctx context.Context) ([]string, error)
	Load(ctx context.Context, id string) (*entity.Record, error)
	Commit(ctx context.Context, id string, rec entity.Record) (records.CommitResult, error)
	PDFPath(id string) string
	HasPDF(id string) bool
}

// Renderer rasterizes a named region of a document.
type Renderer interface {
	RenderRegion(ctx context.Context, documentPath, region string) ([]byte, error)
}

type Option func(*Session)

func WithRenderer(r Renderer) Option { return func(s *Session) { s.renderer = r } }

func WithPublisher(p events.Publisher) Option { return func(s *Session) { s.publisher = p } }

func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

type Session struct {
	id        uuid.UUID
	store     Store
	renderer  Renderer
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time

	queue     []string
	cursor    int
	currentID string
	buffer    *entity.Record
	dirty     bool
	notice    Notice

	subs   map[int]func(Event)
	nextID int
}

func NewSession(store Store, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		id:        uuid.New(),
		store:     store,
		publisher: events.Nop{},
		logger:    logger,
		now:       time.Now,
		subs:      map[int]func(Event){},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_id", s.id.String())
	return s
}

func (s *Session) ID() string { return s.id.String() }

// State is Idle when nothing is pending and Reviewing otherwise.
func (s *Session) State() constants.SessionState {
	if len(s.queue) == 0 {
		return constants.StateIdle
	}
	return constants.StateReviewing
}

// Snapshot returns an immutable copy of the session state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID: s.id.String(),
		State:     s.State(),
		Cursor:    s.cursor,
		Total:     len(s.queue),
		RecordID:  s.currentID,
		Dirty:     s.dirty,
		Notice:    s.notice,
	}
	if s.buffer != nil {
		rec := s.buffer.Clone()
		snap.Record = &rec
	}
	if s.currentID != "" {
		snap.HasPDF = s.store.HasPDF(s.currentID)
	}
	return snap
}

// Queue returns the ids of the last listing.
func (s *Session) Queue() []string { return slices.Clone(s.queue) }

// Refresh re-lists the queue. The edit buffer survives when its record is still
// pending; otherwise the record now under the (clamped) cursor is opened.
func (s *Session) Refresh(ctx context.Context) error {
	ids, err := s.store.ListPending(ctx)
	if err != nil {
		s.warn(ctx, "Could not list pending records: %v", err)
		return err
	}
	s.queue = ids
	if len(ids) == 0 {
		s.clearCurrent()
		s.cursor = 0
		s.setNotice(NoticeInfo, "No files to review.")
		return nil
	}
	if idx := slices.Index(ids, s.currentID); s.currentID != "" && idx >= 0 {
		s.cursor = idx
		if s.buffer != nil {
			return nil
		}
		return s.open(ctx, s.currentID)
	}
	if s.currentID != "" {
		s.loggerFor(ctx).Info("review.record.vanished", "record_id", s.currentID)
	}
	s.cursor = clamp(s.cursor, 0, len(ids)-1)
	return s.open(ctx, ids[s.cursor])
}

// Open moves the cursor to id and loads it into a fresh buffer, replacing any edits.
func (s *Session) Open(ctx context.Context, id string) error {
	idx := slices.Index(s.queue, id)
	if idx < 0 {
		if err := s.Refresh(ctx); err != nil {
			return err
		}
		if idx = slices.Index(s.queue, id); idx < 0 {
			err := fmt.Errorf("%w: %s is not pending", records.ErrRecordNotFound, id)
			s.warn(ctx, "Could not open %s: not in the review queue", id)
			return err
		}
	}
	s.cursor = idx
	return s.open(ctx, id)
}

// Reset discards the buffer and reloads the current record from the store.
func (s *Session) Reset(ctx context.Context) error {
	if s.currentID == "" {
		return ErrNoActiveRecord
	}
	if err := s.open(ctx, s.currentID); err != nil {
		return err
	}
	s.setNotice(NoticeInfo, fmt.Sprintf("Changes to %s discarded.", s.currentID))
	return nil
}

// Navigate moves the cursor by delta. Moving past either end is a no-op.
func (s *Session) Navigate(ctx context.Context, delta int) error {
	if delta != -1 && delta != 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidDelta, delta)
	}
	target := s.cursor + delta
	if len(s.queue) == 0 || target < 0 || target >= len(s.queue) {
		return nil
	}
	s.cursor = target
	return s.open(ctx, s.queue[target])
}

// Save validates the buffer and commits it. On success the cursor advances to the
// record that followed the committed one, wrapping to the first record after the last.
// On any failure the session stays on the record with the buffer intact.
func (s *Session) Save(ctx context.Context) error {
	if s.buffer == nil {
		return ErrNoActiveRecord
	}
	log := s.loggerFor(ctx)
	id := s.currentID

	prepared, err := validate.PrepareForCommit(*s.buffer)
	if err != nil {
		log.Warn("review.save.rejected", "record_id", id, "error", err)
		s.setNotice(NoticeError, fmt.Sprintf("Not saved: %v", err))
		return err
	}

	res, err := s.store.Commit(ctx, id, prepared.Record)
	if err != nil {
		log.Error("review.save.failed", "record_id", id, "error", err)
		s.setNotice(NoticeError, fmt.Sprintf("Save did not take effect for %s: %v", id, err))
		return err
	}
	log.Info("review.save.ok", "record_id", id, "archived", res.Archived, "line_total", validate.FormatAmount(prepared.LineTotal).String())

	messages := []string{fmt.Sprintf("Changes saved for %s.", id)}
	if len(prepared.ClearedDates) > 0 {
		messages = append(messages, fmt.Sprintf("Unparseable dates cleared: %s.", strings.Join(prepared.ClearedDates, ", ")))
	}
	if err := s.publisher.Publish(ctx, events.TopicRecordCommitted, events.RecordCommitted{
		RecordID:     id,
		SessionID:    s.id.String(),
		Total:        validate.FormatAmount(prepared.Total).String(),
		LineTotal:    validate.FormatAmount(prepared.LineTotal).String(),
		LineItems:    len(prepared.Record.LineItems),
		ClearedDates: prepared.ClearedDates,
		Archived:     res.Archived,
		CommittedAt:  s.now().UTC(),
	}); err != nil {
		log.Warn("review.save.notify_failed", "record_id", id, "error", err)
		messages = append(messages, fmt.Sprintf("Commit notification failed: %v.", err))
	}

	level, msg := s.advanceAfter(ctx, id)
	if msg != "" {
		messages = append(messages, msg)
	}
	s.setNotice(level, strings.Join(messages, " "))
	return nil
}

// advanceAfter moves past the committed record and opens the next one.
func (s *Session) advanceAfter(ctx context.Context, committed string) (NoticeLevel, string) {
	prev := s.queue
	next, wrapped := "", false
	if s.cursor+1 < len(prev) {
		next = prev[s.cursor+1]
	} else {
		wrapped = true
		if len(prev) > 0 && prev[0] != committed {
			next = prev[0]
		}
	}
	s.clearCurrent()

	ids, err := s.store.ListPending(ctx)
	if err != nil {
		s.loggerFor(ctx).Warn("review.queue.list_failed", "error", err)
		ids = slices.DeleteFunc(slices.Clone(prev), func(id string) bool { return id == committed })
	}
	s.queue = ids
	if len(ids) == 0 {
		s.cursor = 0
		return NoticeSuccess, "No more files to review!"
	}

	idx := slices.Index(ids, next)
	switch {
	case idx >= 0:
	case wrapped:
		idx = 0
	default:
		idx = clamp(s.cursor, 0, len(ids)-1)
	}
	s.cursor = idx
	if err := s.open(ctx, ids[idx]); err != nil {
		return NoticeWarning, s.notice.Message
	}
	if wrapped {
		return NoticeSuccess, "Reached the end of the queue; back to the first record."
	}
	return NoticeSuccess, ""
}

// Preview renders region of the current record's source document.
func (s *Session) Preview(ctx context.Context, region string) ([]byte, error) {
	if s.currentID == "" {
		return nil, ErrNoActiveRecord
	}
	if s.renderer == nil {
		return nil, ErrNoRenderer
	}
	if !s.store.HasPDF(s.currentID) {
		err := fmt.Errorf("%w: no source document for %s", preview.ErrDocumentNotFound, s.currentID)
		s.warn(ctx, "Preview unavailable: PDF not found for %s.", s.currentID)
		return nil, err
	}
	img, err := s.renderer.RenderRegion(ctx, s.store.PDFPath(s.currentID), region)
	if err != nil {
		s.warn(ctx, "Could not render %s of %s: %v", region, s.currentID, err)
		return nil, err
	}
	return img, nil
}

func (s *Session) open(ctx context.Context, id string) error {
	s.currentID = id
	s.buffer = nil
	s.dirty = false

	rec, err := s.store.Load(ctx, id)
	if err != nil {
		s.warn(ctx, "Could not load %s: %v", id, err)
		return &LoadError{ID: id, Err: err}
	}
	s.buffer = rec
	s.setNotice(NoticeInfo, fmt.Sprintf("Currently reviewing: %s", id))
	s.loggerFor(ctx).Debug("review.record.opened", "record_id", id, "cursor", s.cursor, "total", len(s.queue))
	return nil
}

func (s *Session) clearCurrent() {
	s.currentID = ""
	s.buffer = nil
	s.dirty = false
}

func (s *Session) setNotice(level NoticeLevel, msg string) {
	s.notice = Notice{Level: level, Message: msg}
}

func (s *Session) warn(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.setNotice(NoticeWarning, msg)
	s.loggerFor(ctx).Warn("review.warning", "message", msg)
}

func (s *Session) loggerFor(ctx context.Context) *slog.Logger {
	if rid := common.RequestIDFromContext(ctx); rid != "" {
		return s.logger.With("request_id", rid)
	}
	return s.logger
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
