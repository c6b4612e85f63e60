package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/claims-review/constants"
	"github.com/joseph-ayodele/claims-review/internal/events"
	"github.com/joseph-ayodele/claims-review/internal/preview"
	"github.com/joseph-ayodele/claims-review/internal/records"
	"github.com/joseph-ayodele/claims-review/internal/validate"
)

const validRecord = `{
  "patient_name": "DOE, JANE",
  "cleaned_dos1": "03/01/2024",
  "cleaned_total_charge": "150.50",
  "line_items": [
    {"cpt": "99213", "cleaned_charge": "100.00"},
    {"cpt": "81002", "cleaned_charge": "50.50"}
  ]
}`

type recordingPublisher struct {
	topics []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return p.err
}

type fakeRenderer struct {
	paths   []string
	regions []string
}

func (r *fakeRenderer) RenderRegion(_ context.Context, path, region string) ([]byte, error) {
	if _, _, ok := constants.LookupRegion(region); !ok {
		return nil, preview.ErrInvalidRegion
	}
	r.paths = append(r.paths, path)
	r.regions = append(r.regions, region)
	return []byte("\x89PNG fake"), nil
}

type fixture struct {
	dirs      records.Dirs
	store     *records.FileStore
	session   *Session
	publisher *recordingPublisher
	renderer  *fakeRenderer
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	dirs := records.DirsUnder(t.TempDir())
	require.NoError(t, os.MkdirAll(dirs.Fails, 0o755))
	for id, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dirs.Fails, id+".json"), []byte(body), 0o644))
	}
	store, err := records.NewFileStore(dirs, nil)
	require.NoError(t, err)

	f := &fixture{dirs: dirs, store: store, publisher: &recordingPublisher{}, renderer: &fakeRenderer{}}
	f.session = NewSession(store, nil,
		WithPublisher(f.publisher),
		WithRenderer(f.renderer),
		WithClock(func() time.Time { return time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, f.session.Refresh(context.Background()))
	return f
}

func threeRecords() map[string]string {
	return map[string]string{"a": validRecord, "b": validRecord, "c": validRecord}
}

func TestSessionStartsOnFirstRecord(t *testing.T) {
	f := newFixture(t, threeRecords())
	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateReviewing, snap.State)
	assert.Equal(t, 0, snap.Cursor)
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, "a", snap.RecordID)
	require.NotNil(t, snap.Record)
	assert.Equal(t, "DOE, JANE", snap.Record.PatientName)
	assert.Equal(t, "File 1 of 3", snap.Progress())
	assert.False(t, snap.CanPrevious())
	assert.True(t, snap.CanNext())
}

func TestSessionIdleWhenQueueEmpty(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	snap := f.session.Snapshot()
	assert.Equal(t, constants.StateIdle, snap.State)
	assert.Equal(t, "No files to review.", snap.Notice.Message)

	assert.NoError(t, f.session.Navigate(ctx, 1))
	assert.ErrorIs(t, f.session.Save(ctx), ErrNoActiveRecord)
	assert.ErrorIs(t, f.session.Reset(ctx), ErrNoActiveRecord)
	assert.ErrorIs(t, f.session.Edit("patient_name", "x"), ErrNoActiveRecord)
}

func TestNavigateClampsAtBoundaries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	s := f.session

	require.NoError(t, s.Navigate(ctx, -1))
	assert.Equal(t, 0, s.Snapshot().Cursor)

	require.NoError(t, s.Navigate(ctx, 1))
	require.NoError(t, s.Navigate(ctx, 1))
	assert.Equal(t, "c", s.Snapshot().RecordID)

	require.NoError(t, s.Navigate(ctx, 1), "moving past the end is a no-op")
	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Cursor)
	assert.Equal(t, "c", snap.RecordID)
	assert.False(t, snap.CanNext())

	assert.ErrorIs(t, s.Navigate(ctx, 2), ErrInvalidDelta)
	assert.ErrorIs(t, s.Navigate(ctx, 0), ErrInvalidDelta)
}

func TestNavigateDiscardsUnsavedEdits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	s := f.session

	require.NoError(t, s.Edit("patient_name", "CHANGED"))
	require.NoError(t, s.Navigate(ctx, 1))
	require.NoError(t, s.Navigate(ctx, -1))
	v, _ := s.Value("patient_name")
	assert.Equal(t, "DOE, JANE", v)
}

func TestEditAndReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	s := f.session

	require.NoError(t, s.Edit("patient_name", "DOE, JOHN"))
	require.NoError(t, s.Edit("line_items.1.cleaned_charge", "55.00"))
	snap := s.Snapshot()
	assert.True(t, snap.Dirty)
	assert.Equal(t, "DOE, JOHN", snap.Record.PatientName)
	assert.EqualValues(t, "55.00", snap.Record.LineItems[1].CleanedCharge)

	v, ok := s.Value("line_items.0.cpt")
	assert.True(t, ok)
	assert.Equal(t, "99213", v)

	assert.ErrorIs(t, s.Edit("line_items.5.cpt", "x"), ErrInvalidField)
	assert.ErrorIs(t, s.Edit("line_items", "x"), ErrInvalidField)
	assert.ErrorIs(t, s.Edit("made_up", "x"), ErrInvalidField)
	assert.ErrorIs(t, s.Edit("line_items.*.cpt", "x"), ErrInvalidField)

	require.NoError(t, s.Reset(ctx))
	snap = s.Snapshot()
	assert.False(t, snap.Dirty)
	assert.Equal(t, "DOE, JANE", snap.Record.PatientName)
	assert.EqualValues(t, "50.50", snap.Record.LineItems[1].CleanedCharge)

	_, err := os.Stat(filepath.Join(f.dirs.Output, "a.json"))
	assert.True(t, os.IsNotExist(err), "edits never persist before save")
}

func TestLineItemEditing(t *testing.T) {
	f := newFixture(t, threeRecords())
	s := f.session

	require.NoError(t, s.AddLineItem())
	require.NoError(t, s.Edit("line_items.2.cleaned_charge", "10"))
	assert.Len(t, s.Snapshot().Record.LineItems, 3)

	require.NoError(t, s.RemoveLineItem(0))
	snap := s.Snapshot()
	require.Len(t, snap.Record.LineItems, 2)
	assert.Equal(t, "81002", snap.Record.LineItems[0].CPT)
	assert.ErrorIs(t, s.RemoveLineItem(7), ErrInvalidField)
}

func TestSaveRejectsMismatchAndStays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	s := f.session

	require.NoError(t, s.Edit("cleaned_total_charge", "200.00"))
	err := s.Save(ctx)

	var mismatch *validate.TotalMismatchError
	require.True(t, errors.As(err, &mismatch))
	snap := s.Snapshot()
	assert.Equal(t, "a", snap.RecordID)
	assert.Equal(t, 0, snap.Cursor)
	assert.True(t, snap.Dirty, "buffer keeps the rejected edits")
	assert.Equal(t, NoticeError, snap.Notice.Level)
	assert.FileExists(t, filepath.Join(f.dirs.Fails, "a.json"))
	assert.NoFileExists(t, filepath.Join(f.dirs.Output, "a.json"))
	assert.Empty(t, f.publisher.events)
}

func TestSaveCommitsAndAdvances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	s := f.session

	require.NoError(t, s.Edit("cleaned_total_charge", "151.99"))
	require.NoError(t, s.Save(ctx))

	snap := s.Snapshot()
	assert.Equal(t, "b", snap.RecordID, "cursor moves to the record after the saved one")
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, NoticeSuccess, snap.Notice.Level)
	assert.Contains(t, snap.Notice.Message, "Changes saved for a.")

	assert.FileExists(t, filepath.Join(f.dirs.Output, "a.json"))
	assert.FileExists(t, filepath.Join(f.dirs.Originals, "a.json"))
	assert.NoFileExists(t, filepath.Join(f.dirs.Fails, "a.json"))

	committed, err := os.ReadFile(filepath.Join(f.dirs.Output, "a.json"))
	require.NoError(t, err)
	assert.Contains(t, string(committed), `"cleaned_dos1": "2024-03-01"`)
	assert.Contains(t, string(committed), `"cleaned_total_charge": "151.99"`)

	require.Equal(t, []string{events.TopicRecordCommitted}, f.publisher.topics)
	ev := f.publisher.events[0].(events.RecordCommitted)
	assert.Equal(t, "a", ev.RecordID)
	assert.Equal(t, "150.50", ev.LineTotal)
	assert.Equal(t, s.ID(), ev.SessionID)
	assert.True(t, ev.Archived)
}

func TestSaveOnLastRecordWrapsToFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	s := f.session

	require.NoError(t, s.Navigate(ctx, 1))
	require.NoError(t, s.Navigate(ctx, 1))
	require.NoError(t, s.Save(ctx))

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.Cursor)
	assert.Equal(t, "a", snap.RecordID)
	assert.Equal(t, 2, snap.Total)
}

func TestSaveEverythingEndsIdle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	s := f.session

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(ctx))
	}
	snap := s.Snapshot()
	assert.Equal(t, constants.StateIdle, snap.State)
	assert.Equal(t, 0, snap.Cursor)
	assert.Contains(t, snap.Notice.Message, "No more files to review!")
	assert.Len(t, f.publisher.events, 3)
}

func TestSaveSurvivesPublishFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	f.publisher.err = errors.New("broker down")

	require.NoError(t, f.session.Save(ctx))
	snap := f.session.Snapshot()
	assert.Equal(t, "b", snap.RecordID)
	assert.Contains(t, snap.Notice.Message, "broker down")
	assert.FileExists(t, filepath.Join(f.dirs.Output, "a.json"))
}

func TestSaveStaysWhenOutputWriteFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	s := f.session
	require.NoError(t, s.Navigate(ctx, 1))
	require.NoError(t, s.Edit("patient_name", "ROE, RICHARD"))

	require.NoError(t, os.WriteFile(f.dirs.Output, []byte("not a directory"), 0o644))
	require.Error(t, s.Save(ctx))

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Cursor)
	assert.Equal(t, "b", snap.RecordID)
	assert.True(t, snap.Dirty)
	v, ok := s.Value("patient_name")
	require.True(t, ok)
	assert.Equal(t, "ROE, RICHARD", v, "buffer is intact after a failed commit")
	assert.Equal(t, NoticeError, snap.Notice.Level)
	assert.Contains(t, snap.Notice.Message, "Save did not take effect for b")
	assert.NotContains(t, f.publisher.topics, events.TopicRecordCommitted)
	assert.FileExists(t, filepath.Join(f.dirs.Fails, "b.json"))

	require.NoError(t, os.Remove(f.dirs.Output))
	require.NoError(t, s.Save(ctx), "retry succeeds once the output directory is usable")
	assert.Equal(t, "c", s.Snapshot().RecordID)
	out, err := os.ReadFile(filepath.Join(f.dirs.Output, "b.json"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "ROE, RICHARD")
	assert.Equal(t, []string{events.TopicRecordCommitted}, f.publisher.topics)
}

func TestSaveStaysWhenArchiveFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	s := f.session
	require.NoError(t, s.Edit("patient_name", "ROE, RICHARD"))

	require.NoError(t, os.WriteFile(f.dirs.Originals, []byte("not a directory"), 0o644))
	err := s.Save(ctx)
	require.ErrorIs(t, err, records.ErrArchive)

	snap := s.Snapshot()
	assert.Equal(t, "a", snap.RecordID)
	assert.True(t, snap.Dirty)
	assert.Equal(t, NoticeError, snap.Notice.Level)
	assert.Empty(t, f.publisher.topics)
	assert.FileExists(t, filepath.Join(f.dirs.Output, "a.json"))
	assert.FileExists(t, filepath.Join(f.dirs.Fails, "a.json"))

	require.NoError(t, os.Remove(f.dirs.Originals))
	require.NoError(t, s.Save(ctx))
	assert.Equal(t, "b", s.Snapshot().RecordID)
	assert.FileExists(t, filepath.Join(f.dirs.Originals, "a.json"))
	assert.NoFileExists(t, filepath.Join(f.dirs.Fails, "a.json"))
}

func TestLoadFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"a": validRecord, "b": `{"patient_name": `, "c": validRecord})
	s := f.session

	err := s.Navigate(ctx, 1)
	assert.ErrorIs(t, err, records.ErrMalformedRecord)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "b", loadErr.ID)
	snap := s.Snapshot()
	assert.Equal(t, "b", snap.RecordID)
	assert.Nil(t, snap.Record)
	assert.Equal(t, NoticeWarning, snap.Notice.Level)
	assert.ErrorIs(t, s.Save(ctx), ErrNoActiveRecord)

	require.NoError(t, s.Navigate(ctx, 1), "session keeps working after a bad record")
	assert.Equal(t, "c", s.Snapshot().RecordID)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	s := f.session

	require.NoError(t, s.Open(ctx, "c"))
	assert.Equal(t, 2, s.Snapshot().Cursor)

	require.NoError(t, os.WriteFile(filepath.Join(f.dirs.Fails, "d.json"), []byte(validRecord), 0o644))
	require.NoError(t, s.Open(ctx, "d"), "ids added after the last listing are found")
	assert.Equal(t, 3, s.Snapshot().Cursor)

	assert.ErrorIs(t, s.Open(ctx, "zzz"), records.ErrRecordNotFound)
}

func TestRefreshKeepsBufferWhileRecordPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	s := f.session

	require.NoError(t, s.Navigate(ctx, 1))
	require.NoError(t, s.Edit("patient_name", "EDITED"))
	require.NoError(t, os.Remove(filepath.Join(f.dirs.Fails, "a.json")))

	require.NoError(t, s.Refresh(ctx))
	snap := s.Snapshot()
	assert.Equal(t, "b", snap.RecordID)
	assert.Equal(t, 0, snap.Cursor, "cursor follows the record")
	assert.Equal(t, "EDITED", snap.Record.PatientName)

	require.NoError(t, os.Remove(filepath.Join(f.dirs.Fails, "b.json")))
	require.NoError(t, s.Refresh(ctx))
	snap = s.Snapshot()
	assert.Equal(t, "c", snap.RecordID)
	assert.False(t, snap.Dirty)
}

func TestPreview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	s := f.session

	_, err := s.Preview(ctx, "header")
	assert.ErrorIs(t, err, preview.ErrDocumentNotFound)
	assert.Equal(t, NoticeWarning, s.Snapshot().Notice.Level)

	require.NoError(t, os.MkdirAll(f.dirs.PDFs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.dirs.PDFs, "a.pdf"), []byte("%PDF-1.4"), 0o644))
	assert.True(t, s.Snapshot().HasPDF)

	img, err := s.Preview(ctx, "line_items")
	require.NoError(t, err)
	assert.NotEmpty(t, img)
	assert.Equal(t, []string{filepath.Join(f.dirs.PDFs, "a.pdf")}, f.renderer.paths)

	_, err = s.Preview(ctx, "margin")
	assert.ErrorIs(t, err, preview.ErrInvalidRegion)
}

func TestDispatchNotifiesSubscribers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, threeRecords())
	s := f.session

	var got []Event
	unsubscribe := s.Subscribe(func(e Event) { got = append(got, e) })

	snap, err := s.Dispatch(ctx, Navigate{Delta: 1})
	require.NoError(t, err)
	assert.Equal(t, "b", snap.RecordID)

	_, err = s.Dispatch(ctx, Edit{Field: "cleaned_total_charge", Value: "999"})
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, Save{})
	assert.Error(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "navigate", got[0].Command)
	assert.Equal(t, "save", got[2].Command)
	assert.Error(t, got[2].Err)
	assert.Equal(t, "b", got[2].Snapshot.RecordID)

	unsubscribe()
	_, _ = s.Dispatch(ctx, Reset{})
	assert.Len(t, got, 3)
}
