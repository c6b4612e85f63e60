package review

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/joseph-ayodele/claims-review/internal/entity"
)

// Edit sets field in the buffer to value. Field is a dotted path: a top-level name
// ("patient_name") or a line item field ("line_items.0.cleaned_charge"). Keys carried
// through from the source file may be edited when they already exist. Nothing is persisted.
func (s *Session) Edit(field, value string) error {
	if s.buffer == nil {
		return ErrNoActiveRecord
	}
	data, err := json.Marshal(s.buffer)
	if err != nil {
		return fmt.Errorf("encode buffer: %w", err)
	}
	if err := checkFieldPath(data, field); err != nil {
		return err
	}
	data, err = sjson.SetBytes(data, field, value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidField, field, err)
	}
	var rec entity.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidField, field, err)
	}
	s.buffer = &rec
	s.dirty = true
	return nil
}

// Value reads field from the buffer using the same paths as Edit.
func (s *Session) Value(field string) (string, bool) {
	if s.buffer == nil {
		return "", false
	}
	data, err := json.Marshal(s.buffer)
	if err != nil {
		return "", false
	}
	r := gjson.GetBytes(data, field)
	return r.String(), r.Exists()
}

// AddLineItem appends an empty line item to the buffer.
func (s *Session) AddLineItem() error {
	if s.buffer == nil {
		return ErrNoActiveRecord
	}
	s.buffer.LineItems = append(s.buffer.LineItems, entity.LineItem{})
	s.dirty = true
	return nil
}

// RemoveLineItem drops the line item at index from the buffer.
func (s *Session) RemoveLineItem(index int) error {
	if s.buffer == nil {
		return ErrNoActiveRecord
	}
	if index < 0 || index >= len(s.buffer.LineItems) {
		return fmt.Errorf("%w: line item %d does not exist", ErrInvalidField, index)
	}
	s.buffer.LineItems = slices.Delete(s.buffer.LineItems, index, index+1)
	s.dirty = true
	return nil
}

func checkFieldPath(data []byte, field string) error {
	parts := strings.Split(field, ".")
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, `*?|#@\!=<>%`) {
			return fmt.Errorf("%w: %q", ErrInvalidField, field)
		}
	}
	switch {
	case len(parts) == 1:
		if slices.Contains(entity.RecordFields(), field) || isScalar(gjson.GetBytes(data, field)) {
			return nil
		}
	case len(parts) == 3 && parts[0] == "line_items":
		idx, err := strconv.Atoi(parts[1])
		if err != nil || idx < 0 || idx >= int(gjson.GetBytes(data, "line_items.#").Int()) {
			return fmt.Errorf("%w: line item %s does not exist", ErrInvalidField, parts[1])
		}
		if slices.Contains(entity.LineItemFields(), parts[2]) || isScalar(gjson.GetBytes(data, field)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidField, field)
}

func isScalar(r gjson.Result) bool {
	return r.Exists() && !r.IsObject() && !r.IsArray()
}
