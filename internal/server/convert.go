package server

import (
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/claims-review/internal/common"
	"github.com/joseph-ayodele/claims-review/internal/review"
)

// SnapshotToStruct renders a session snapshot as a protobuf struct. The record,
// when present, keeps its on-disk JSON shape.
func SnapshotToStruct(snap review.Snapshot) (*structpb.Struct, error) {
	m := map[string]any{
		"session_id":   snap.SessionID,
		"state":        string(snap.State),
		"cursor":       snap.Cursor,
		"total":        snap.Total,
		"record_id":    snap.RecordID,
		"dirty":        snap.Dirty,
		"has_pdf":      snap.HasPDF,
		"progress":     snap.Progress(),
		"can_previous": snap.CanPrevious(),
		"can_next":     snap.CanNext(),
		"notice": map[string]any{
			"level":   string(snap.Notice.Level),
			"message": snap.Notice.Message,
		},
	}
	if snap.Record != nil {
		data, err := json.Marshal(snap.Record)
		if err != nil {
			return nil, fmt.Errorf("encode record: %w", err)
		}
		var rec map[string]any
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("encode record: %w", err)
		}
		m["record"] = rec
	}
	return structpb.NewStruct(m)
}

func stringField(req *structpb.Struct, name string) (string, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return "", common.InvalidArgumentErrorf("%s is required", name)
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", common.InvalidArgumentErrorf("%s must be a string", name)
	}
	return sv.StringValue, nil
}

func intField(req *structpb.Struct, name string) (int, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, common.InvalidArgumentErrorf("%s is required", name)
	}
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || nv.NumberValue != math.Trunc(nv.NumberValue) || math.Abs(nv.NumberValue) > math.MaxInt32 {
		return 0, common.InvalidArgumentErrorf("%s must be an integer", name)
	}
	return int(nv.NumberValue), nil
}
