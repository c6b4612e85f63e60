package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/claims-review/constants"
	"github.com/joseph-ayodele/claims-review/internal/common"
	"github.com/joseph-ayodele/claims-review/internal/entity"
	"github.com/joseph-ayodele/claims-review/internal/events"
)

const (
	ManifestName  = "manifest.xlsx"
	manifestSheet = "Manifest"
)

var (
	// ErrNothingToExport is returned when the output directory holds no committed records.
	ErrNothingToExport = common.NewAppError("NOTHING_TO_EXPORT", "no committed records to export", common.ErrFailedPrecondition)
	ErrUnknownBatch    = common.NewAppError("UNKNOWN_EXPORT_BATCH", "no pending export with that batch id", common.ErrNotFound)
)

// Store is the slice of the record store an export reads and clears.
type Store interface {
	ListCommitted(ctx context.Context) ([]string, error)
	ReadCommitted(ctx context.Context, id string) ([]byte, error)
	RemoveCommitted(ctx context.Context, id string) error
}

// Batch is a built archive that has not been cleared from the output directory yet.
type Batch struct {
	ID        string
	RecordIDs []string
	Archive   []byte
	CreatedAt time.Time

	contents map[string][]byte
}

// Summary describes a cleared batch.
type Summary struct {
	BatchID string
	Cleared []string
	Bytes   int
	// Leftover lists ids that stay in the output directory: their file changed after the
	// archive was built, or it could not be removed.
	Leftover []string
}

// Service packages committed records into a zip archive and, once the caller has
// delivered it, clears them from the output queue.
type Service struct {
	store     Store
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store Store, publisher events.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{store: store, publisher: publisher, logger: logger, now: time.Now}
}

// Build archives every committed record plus an XLSX manifest. Nothing is removed.
func (s *Service) Build(ctx context.Context) (*Batch, error) {
	start := time.Now()
	ids, err := s.store.ListCommitted(ctx)
	if err != nil {
		return nil, fmt.Errorf("list committed: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNothingToExport
	}

	b := &Batch{
		ID:        uuid.New().String(),
		RecordIDs: ids,
		CreatedAt: s.now().UTC(),
		contents:  make(map[string][]byte, len(ids)),
	}
	if b.Archive, err = s.buildArchive(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("export.build.ok",
		"batch_id", b.ID,
		"records", len(ids),
		"bytes", len(b.Archive),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return b, nil
}

// Clear removes the batch's records from the output directory. A record whose file
// changed since Build (re-committed meanwhile) is kept and reported as leftover.
func (s *Service) Clear(ctx context.Context, b *Batch) (Summary, error) {
	if b == nil {
		return Summary{}, ErrUnknownBatch
	}
	sum := Summary{BatchID: b.ID, Bytes: len(b.Archive)}
	for _, id := range b.RecordIDs {
		current, err := s.store.ReadCommitted(ctx, id)
		switch {
		case errors.Is(err, common.ErrNotFound):
			sum.Cleared = append(sum.Cleared, id)
			continue
		case err != nil:
			s.logger.Warn("export.clear.failed", "batch_id", b.ID, "record_id", id, "error", err)
			sum.Leftover = append(sum.Leftover, id)
			continue
		case !bytes.Equal(current, b.contents[id]):
			s.logger.Warn("export.clear.changed", "batch_id", b.ID, "record_id", id)
			sum.Leftover = append(sum.Leftover, id)
			continue
		}
		if err := s.store.RemoveCommitted(ctx, id); err != nil {
			s.logger.Warn("export.clear.failed", "batch_id", b.ID, "record_id", id, "error", err)
			sum.Leftover = append(sum.Leftover, id)
			continue
		}
		sum.Cleared = append(sum.Cleared, id)
	}

	if err := s.publisher.Publish(ctx, events.TopicExportCompleted, events.ExportCompleted{
		BatchID:    b.ID,
		RecordIDs:  sum.Cleared,
		Bytes:      sum.Bytes,
		ExportedAt: s.now().UTC(),
	}); err != nil {
		s.logger.Warn("export.notify.failed", "batch_id", b.ID, "error", err)
	}
	s.logger.Info("export.ok", "batch_id", b.ID, "cleared", len(sum.Cleared), "leftover", len(sum.Leftover))
	return sum, nil
}

func (s *Service) buildArchive(ctx context.Context, b *Batch) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	rows := make([]manifestRow, 0, len(b.RecordIDs))

	for _, id := range b.RecordIDs {
		data, err := s.store.ReadCommitted(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", id, err)
		}
		b.contents[id] = data
		name := path.Join(constants.OutputDir, id+"."+constants.RecordExt)
		if err := writeEntry(zw, name, data, b.CreatedAt); err != nil {
			return nil, err
		}
		rows = append(rows, rowFor(id, data))
	}

	manifest, err := buildManifest(b.ID, rows)
	if err != nil {
		return nil, err
	}
	if err := writeEntry(zw, ManifestName, manifest, b.CreatedAt); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, at time.Time) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: at})
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	return nil
}

type manifestRow struct {
	id      string
	rec     *entity.Record
	problem string
}

func rowFor(id string, data []byte) manifestRow {
	var rec entity.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return manifestRow{id: id, problem: "unreadable: " + err.Error()}
	}
	return manifestRow{id: id, rec: &rec}
}

func buildManifest(batchID string, rows []manifestRow) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", manifestSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	headers := []string{
		"Batch ID",
		"Record ID",
		"Patient Name",
		"Account No",
		"DOS 1",
		"DOS 2",
		"Total Charge",
		"Line Items",
		"Notes",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(manifestSheet, cell, h)
	}

	for i, r := range rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(manifestSheet, cell, v)
		}
		write(1, batchID)
		write(2, r.id)
		if r.rec == nil {
			write(9, r.problem)
			continue
		}
		write(3, r.rec.PatientName)
		write(4, r.rec.PatientAcctNo)
		write(5, r.rec.CleanedDOS1)
		write(6, r.rec.CleanedDOS2)
		write(7, r.rec.CleanedTotalCharge.String())
		write(8, len(r.rec.LineItems))
	}

	_ = f.SetColWidth(manifestSheet, "A", "A", 38) // batch
	_ = f.SetColWidth(manifestSheet, "B", "D", 24)
	_ = f.SetColWidth(manifestSheet, "E", "H", 14)
	_ = f.SetColWidth(manifestSheet, "I", "I", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
