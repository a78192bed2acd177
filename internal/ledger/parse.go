package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// dayFirstLayouts are tried before the lenient parser so that 05.04.2025 is
// read as 5 April.
var dayFirstLayouts = []string{"2.1.2006", "2006-01-02", "2/1/2006"}

// ParseQuantity parses a signed, non-zero whole number of units.
func ParseQuantity(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ValidationError{Field: "quantity", Reason: "is required"}
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "+"))
	if err != nil {
		return 0, &ValidationError{Field: "quantity", Reason: "must be a whole number, e.g. 30"}
	}
	if err := checkQuantity(n); err != nil {
		return 0, err
	}
	return n, nil
}

// ParseDate parses a calendar date entered by a user, DD.MM.YYYY first.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &ValidationError{Field: "date", Reason: "is required"}
	}
	for _, layout := range dayFirstLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if strings.Count(s, ".") == 2 {
		// a dotted value that failed the day-first layout is not a real date
		return time.Time{}, &ValidationError{Field: "date", Reason: "use the DD.MM.YYYY format, e.g. 31.12.2025"}
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: "use the DD.MM.YYYY format, e.g. 31.12.2025"}
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
}
