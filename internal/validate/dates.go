package validate

import (
	"strings"
	"time"
)

const canonicalDate = "2006-01-02"

var dateLayouts = []string{
	canonicalDate,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"01/02/06",
	"1/2/06",
	"20060102",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC3339,
}

// NormalizeDate returns s in YYYY-MM-DD form. The bool is false when s was present
// but could not be parsed; the returned value is then empty.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(canonicalDate), true
		}
	}
	return "", false
}
