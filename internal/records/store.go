package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/claims-review/constants"
	"github.com/joseph-ayodele/claims-review/internal/common"
	"github.com/joseph-ayodele/claims-review/internal/entity"
)

// Dirs is the on-disk layout of the queue. All four directories are keyed by the same stems.
type Dirs struct {
	Fails     string
	Output    string
	Originals string
	PDFs      string
}

// DirsFromConfig picks the queue directories out of the application config.
func DirsFromConfig(cfg common.QueueConfig) Dirs {
	return Dirs{
		Fails:     cfg.FailsDir,
		Output:    cfg.OutputDir,
		Originals: cfg.OriginalsDir,
		PDFs:      cfg.PDFsDir,
	}
}

// DirsUnder lays the queue out under a single data root.
func DirsUnder(root string) Dirs {
	return Dirs{
		Fails:     filepath.Join(root, constants.FailsDir),
		Output:    filepath.Join(root, constants.OutputDir),
		Originals: filepath.Join(root, constants.OriginalsDir),
		PDFs:      filepath.Join(root, constants.PDFsDir),
	}
}

// CommitResult describes what a commit did on disk.
type CommitResult struct {
	OutputPath   string
	ArchivedPath string
	// Archived is false when the fails copy was already gone (a re-run after a partial commit).
	Archived bool
}

// FileStore is the sole writer of the fails, output and originals directories.
type FileStore struct {
	dirs   Dirs
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewFileStore(dirs Dirs, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compileSchema(BuildRecordSchema())
	if err != nil {
		return nil, err
	}
	return &FileStore{dirs: dirs, schema: schema, logger: logger}, nil
}

// Dirs returns the directory layout the store was built with.
func (s *FileStore) Dirs() Dirs { return s.dirs }

// ListPending returns the ids of every record currently in the fails directory.
// The listing is recomputed on every call.
func (s *FileStore) ListPending(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := listStems(s.dirs.Fails, constants.RecordExt)
	if err != nil {
		s.logger.Error("failed to list pending records", "dir", s.dirs.Fails, "error", err)
		return nil, err
	}
	s.logger.Debug("pending records listed", "count", len(ids))
	return ids, nil
}

// Load reads and decodes fails/<id>.json.
func (s *FileStore) Load(ctx context.Context, id string) (*entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	path := s.pendingPath(id)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		s.logger.Error("failed to read record", "record_id", id, "path", path, "error", err)
		return nil, fmt.Errorf("read record %s: %w", id, err)
	}
	rec, err := s.Decode(data)
	if err != nil {
		s.logger.Warn("malformed record", "record_id", id, "error", err)
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return rec, nil
}

// Decode checks data against the record schema and decodes it.
func (s *FileStore) Decode(data []byte) (*entity.Record, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := s.schema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	var rec entity.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &rec, nil
}

// Commit writes rec to output/<id>.json and then moves fails/<id>.json to originals/<id>.json.
// The two steps are not atomic as a pair. Only the output write is mandatory: when the fails
// copy is already gone (a repeated commit) the move is skipped without error.
func (s *FileStore) Commit(ctx context.Context, id string, rec entity.Record) (CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return CommitResult{}, err
	}
	if err := ValidateID(id); err != nil {
		return CommitResult{}, err
	}
	data, err := rec.Encode()
	if err != nil {
		return CommitResult{}, fmt.Errorf("encode record %s: %w", id, err)
	}

	res := CommitResult{
		OutputPath:   s.committedPath(id),
		ArchivedPath: s.originalPath(id),
	}
	if err := writeFileAtomic(res.OutputPath, data); err != nil {
		s.logger.Error("record.commit.write_failed", "record_id", id, "path", res.OutputPath, "error", err)
		return CommitResult{}, fmt.Errorf("write output %s: %w", id, err)
	}

	src := s.pendingPath(id)
	if _, err := os.Lstat(src); errors.Is(err, os.ErrNotExist) {
		s.logger.Info("record.commit.ok", "record_id", id, "archived", false, "reason", "source already moved")
		return res, nil
	}
	if err := moveFile(src, res.ArchivedPath); err != nil {
		s.logger.Error("record.commit.archive_failed", "record_id", id, "src", src, "dst", res.ArchivedPath, "error", err)
		return res, fmt.Errorf("%w: %s: %v", ErrArchive, id, err)
	}
	res.Archived = true
	s.logger.Info("record.commit.ok", "record_id", id, "archived", true)
	return res, nil
}

// PDFPath is where the source document for id would live.
func (s *FileStore) PDFPath(id string) string {
	return filepath.Join(s.dirs.PDFs, id+"."+constants.DocumentExt)
}

// HasPDF reports whether a source document exists for id.
func (s *FileStore) HasPDF(id string) bool {
	if ValidateID(id) != nil {
		return false
	}
	fi, err := os.Stat(s.PDFPath(id))
	return err == nil && fi.Mode().IsRegular()
}

// ListCommitted returns the ids currently in the output directory.
func (s *FileStore) ListCommitted(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return listStems(s.dirs.Output, constants.RecordExt)
}

// ReadCommitted returns the stored bytes of output/<id>.json.
func (s *FileStore) ReadCommitted(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.committedPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return data, err
}

// RemoveCommitted deletes output/<id>.json. A missing file is not an error.
func (s *FileStore) RemoveCommitted(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.committedPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove committed %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) pendingPath(id string) string {
	return filepath.Join(s.dirs.Fails, id+"."+constants.RecordExt)
}

func (s *FileStore) committedPath(id string) string {
	return filepath.Join(s.dirs.Output, id+"."+constants.RecordExt)
}

func (s *FileStore) originalPath(id string) string {
	return filepath.Join(s.dirs.Originals, id+"."+constants.RecordExt)
}
