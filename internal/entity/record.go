package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one claim's correctable data, keyed by its filename stem.
// Keys the struct does not name are kept in Extra and written back untouched.
type Record struct {
	PatientName        string     `json:"patient_name"`
	CleanedDOS1        string     `json:"cleaned_dos1"`
	CleanedDOS2        string     `json:"cleaned_dos2"`
	CleanedTotalCharge Amount     `json:"cleaned_total_charge"`
	PatientAcctNo      string     `json:"patient_acct_no"`
	TIN                string     `json:"tin"`
	LineItems          []LineItem `json:"line_items"`

	Extra map[string]json.RawMessage `json:"-"`
}

// LineItem is one billed service line.
type LineItem struct {
	DateOfService string `json:"date_of_service"`
	PLOS          string `json:"plos"`
	CPT           string `json:"cpt"`
	Modifier      string `json:"modifier"`
	CleanedCharge Amount `json:"cleaned_charge"`
	Units         string `json:"units"`

	Extra map[string]json.RawMessage `json:"-"`
}

var (
	recordKeys   = []string{"patient_name", "cleaned_dos1", "cleaned_dos2", "cleaned_total_charge", "patient_acct_no", "tin", "line_items"}
	lineItemKeys = []string{"date_of_service", "plos", "cpt", "modifier", "cleaned_charge", "units"}
)

// RecordFields lists the top-level field names a reviewer may edit.
func RecordFields() []string { return append([]string(nil), recordKeys[:6]...) }

// LineItemFields lists the per-line field names a reviewer may edit.
func LineItemFields() []string { return append([]string(nil), lineItemKeys...) }

type recordAlias Record
type lineItemAlias LineItem

func (r *Record) UnmarshalJSON(data []byte) error {
	var a recordAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, recordKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	*r = Record(a)
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	a := recordAlias(r)
	if a.LineItems == nil {
		a.LineItems = []LineItem{}
	}
	return mergeExtra(a, r.Extra)
}

func (li *LineItem) UnmarshalJSON(data []byte) error {
	var a lineItemAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, lineItemKeys)
	if err != nil {
		return err
	}
	a.Extra = extra
	*li = LineItem(a)
	return nil
}

func (li LineItem) MarshalJSON() ([]byte, error) {
	return mergeExtra(lineItemAlias(li), li.Extra)
}

// Clone returns a deep copy, so a buffer can be edited without touching the source.
func (r Record) Clone() Record {
	out := r
	out.Extra = cloneExtra(r.Extra)
	if r.LineItems != nil {
		out.LineItems = make([]LineItem, len(r.LineItems))
		for i, li := range r.LineItems {
			li.Extra = cloneExtra(li.Extra)
			out.LineItems[i] = li
		}
	}
	return out
}

// Encode renders the record the way it is stored on disk: sorted keys,
// two-space indentation, trailing newline.
func (r Record) Encode() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Amount is a numeric string. On read it accepts a JSON string, a JSON
// number or null; it is always written as a string.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("amount must be a string or number: %w", err)
		}
		*a = Amount(n.String())
	}
	return nil
}

func (a Amount) String() string { return string(a) }

// IsBlank reports whether the amount carries no digits at all.
func (a Amount) IsBlank() bool { return strings.TrimSpace(string(a)) == "" }

func splitExtra(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func mergeExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// round-trip through a map so keys always come out sorted
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, known := fields[k]; !known {
			fields[k] = raw
		}
	}
	return json.Marshal(fields)
}

func cloneExtra(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
