package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/claims-review/internal/common"
	"github.com/joseph-ayodele/claims-review/internal/export"
	"github.com/joseph-ayodele/claims-review/internal/review"
)

// ReviewServer hosts one review session. Every call is serialized on mu, so the
// session sees one action at a time no matter how many clients are connected.
type ReviewServer struct {
	mu              sync.Mutex
	session         *review.Session
	exporter        *export.Service
	logger          *slog.Logger
	maxMessageBytes int
	// pending is the last archive served by Export and not yet cleared.
	pending *export.Batch
}

var _ ReviewServiceServer = (*ReviewServer)(nil)

// ExportBatchHeader carries the batch id of an Export response.
const ExportBatchHeader = "x-export-batch-id"

// DefaultMaxMessageBytes matches grpc-go's default receive limit.
const DefaultMaxMessageBytes = 4 << 20

// envelope is the room left in a message for framing around the archive bytes.
const envelope = 1 << 10

var ErrArchiveTooLarge = common.NewAppError("ARCHIVE_TOO_LARGE", "export archive exceeds the message size limit", common.ErrResourceExhausted)

type Option func(*ReviewServer)

// WithMaxMessageBytes sets the largest message the server sends. It should match
// the grpc.MaxSendMsgSize the server is built with.
func WithMaxMessageBytes(n int) Option {
	return func(s *ReviewServer) {
		if n > 0 {
			s.maxMessageBytes = n
		}
	}
}

func NewReviewServer(session *review.Session, exporter *export.Service, logger *slog.Logger, opts ...Option) *ReviewServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ReviewServer{session: session, exporter: exporter, logger: logger, maxMessageBytes: DefaultMaxMessageBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch applies cmd under the server lock. The queue watcher uses it too.
func (s *ReviewServer) Dispatch(ctx context.Context, cmd review.Command) (review.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Dispatch(ctx, cmd)
}

func (s *ReviewServer) GetState(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	snap := s.session.Snapshot()
	s.mu.Unlock()
	return s.reply(snap, nil)
}

func (s *ReviewServer) Open(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := stringField(req, "id")
	if err != nil {
		return nil, err
	}
	return s.reply(s.Dispatch(ctx, review.Open{ID: id}))
}

func (s *ReviewServer) Edit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	field, err := stringField(req, "field")
	if err != nil {
		return nil, err
	}
	value, err := stringField(req, "value")
	if err != nil {
		return nil, err
	}
	return s.reply(s.Dispatch(ctx, review.Edit{Field: field, Value: value}))
}

func (s *ReviewServer) Reset(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(s.Dispatch(ctx, review.Reset{}))
}

func (s *ReviewServer) Navigate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	delta, err := intField(req, "delta")
	if err != nil {
		return nil, err
	}
	return s.reply(s.Dispatch(ctx, review.Navigate{Delta: delta}))
}

func (s *ReviewServer) Save(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(s.Dispatch(ctx, review.Save{}))
}

func (s *ReviewServer) Refresh(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(s.Dispatch(ctx, review.Refresh{}))
}

func (s *ReviewServer) AddLineItem(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(s.Dispatch(ctx, review.AddLineItem{}))
}

func (s *ReviewServer) RemoveLineItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	idx, err := intField(req, "index")
	if err != nil {
		return nil, err
	}
	return s.reply(s.Dispatch(ctx, review.RemoveLineItem{Index: idx}))
}

func (s *ReviewServer) RenderRegion(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error) {
	region, err := stringField(req, "region")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	img, err := s.session.Preview(ctx, region)
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("render.failed", "region", region, "error", err)
		return nil, common.ToStatus(err)
	}
	return wrapperspb.Bytes(img), nil
}

// Export returns the zip archive of all committed records. The records stay in the
// output directory until ClearExport is called with the batch id from the
// x-export-batch-id response header. A newer Export replaces the pending batch.
func (s *ReviewServer) Export(ctx context.Context, _ *structpb.Struct) (*wrapperspb.BytesValue, error) {
	if s.exporter == nil {
		return nil, common.ToStatus(errExportDisabled)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := s.exporter.Build(ctx)
	if err != nil {
		s.logger.Warn("export.failed", "error", err)
		return nil, common.ToStatus(err)
	}
	if len(batch.Archive)+envelope > s.maxMessageBytes {
		s.logger.Warn("export.too_large", "batch_id", batch.ID, "bytes", len(batch.Archive), "limit", s.maxMessageBytes)
		return nil, common.ToStatus(fmt.Errorf("%w: %d bytes, limit %d; use the CLI export", ErrArchiveTooLarge, len(batch.Archive), s.maxMessageBytes))
	}
	if err := grpc.SetHeader(ctx, metadata.Pairs(ExportBatchHeader, batch.ID)); err != nil {
		s.logger.Warn("export.header.failed", "batch_id", batch.ID, "error", err)
		return nil, common.ToStatus(err)
	}
	s.pending = batch
	s.logger.Info("export.served", "batch_id", batch.ID, "records", len(batch.RecordIDs), "bytes", len(batch.Archive))
	return wrapperspb.Bytes(batch.Archive), nil
}

// ClearExport removes the records of a delivered batch from the output directory.
func (s *ReviewServer) ClearExport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.exporter == nil {
		return nil, common.ToStatus(errExportDisabled)
	}
	id, err := stringField(req, "batch_id")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil || s.pending.ID != id {
		return nil, common.ToStatus(fmt.Errorf("%w: %s", export.ErrUnknownBatch, id))
	}
	sum, err := s.exporter.Clear(ctx, s.pending)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	s.pending = nil
	out, err := structpb.NewStruct(map[string]any{
		"batch_id": sum.BatchID,
		"cleared":  stringsToAny(sum.Cleared),
		"leftover": stringsToAny(sum.Leftover),
	})
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return out, nil
}

var errExportDisabled = common.NewAppError("EXPORT_DISABLED", "export is not configured", common.ErrFailedPrecondition)

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// reply answers with the snapshot. A record that failed to load is reported in the
// snapshot notice, so the client still learns where the cursor moved.
func (s *ReviewServer) reply(snap review.Snapshot, err error) (*structpb.Struct, error) {
	var loadErr *review.LoadError
	if err != nil && !errors.As(err, &loadErr) {
		return nil, common.ToStatus(err)
	}
	out, err := SnapshotToStruct(snap)
	if err != nil {
		s.logger.Error("snapshot.encode.failed", "error", err)
		return nil, common.ToStatus(err)
	}
	return out, nil
}
