package core

import (
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// plainNumber is what a numeric cell must look like once currency marks and
// grouping commas are gone.
var plainNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var stripNumberMarks = strings.NewReplacer("$", "", "€", "", "£", "", "₹", "", ",", "")

// TwoDigitYearPivot is how many years past the current one a two-digit year
// may land before it is read as the previous century.
var TwoDigitYearPivot = 20

// dateLayout is one accepted date form; short marks a two-digit year.
type dateLayout struct {
	layout string
	short  bool
}

// dateLayouts are tried in order, four-digit years first.
var dateLayouts = []dateLayout{
	{"2006-01-02", false}, {"2006/1/2", false}, {"2006.01.02", false},
	{"2006-01-02 15:04:05", false}, {"2006-01-02 15:04", false},
	{"2006-01-02T15:04:05", false}, {"2006-01-02T15:04", false}, {time.RFC3339, false},
	{"2006/1/2 15:04:05", false}, {"2006/1/2 15:04", false},
	{"1/2/2006", false}, {"1-2-2006", false}, {"1.2.2006", false},
	{"1/2/2006 15:04:05", false}, {"1/2/2006 15:04", false}, {"1/2/2006 3:04 PM", false},
	{"Jan 2, 2006", false}, {"Jan 2 2006", false}, {"2 Jan 2006", false}, {"2-Jan-2006", false},
	{"January 2, 2006", false}, {"January 2 2006", false}, {"2 January 2006", false},
	{"Mon, Jan 2, 2006", false}, {"Monday, January 2, 2006", false},
	{"20060102", false},

	{"1/2/06", true}, {"01/02/06", true}, {"1-2-06", true},
	{"1.2.06", true}, {"01.02.06", true}, {"2-Jan-06", true},
}

// ParseNumber reads an amount or quantity cell. Currency symbols and
// thousands separators are ignored and "(12.50)" is -12.5. Blank or
// malformed input reports false.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	negate := len(s) > 1 && s[0] == '(' && s[len(s)-1] == ')'
	if negate {
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSpace(stripNumberMarks.Replace(s))
	if negate {
		if strings.ContainsAny(s[:min(1, len(s))], "+-") {
			return 0, false
		}
		s = "-" + s
	}
	if !plainNumber.MatchString(s) {
		return 0, false
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil || !n.Valid {
		return 0, false
	}
	f, err := n.Float64Value()
	return f.Float64, err == nil && f.Valid
}

// ParseDate reads an invoice date in any of the accepted layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range dateLayouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		if l.short && t.Year() > time.Now().Year()+TwoDigitYearPivot {
			t = t.AddDate(-100, 0, 0)
		}
		return t, true
	}
	return time.Time{}, false
}

// AsDate coerces a value to a timestamp. Text goes through ParseDate;
// numbers and nulls are never dates.
func AsDate(v Value) (time.Time, bool) {
	switch v.Kind {
	case KindDate:
		return v.Time, true
	case KindText:
		return ParseDate(v.Str)
	}
	return time.Time{}, false
}

// CleanCell strips spreadsheet export artifacts: surrounding space, a
// formula prefix such as ="0042" and enclosing quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "="); ok {
		s = rest
		if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
			s = s[1 : len(s)-1]
		}
	}
	return strings.Trim(s, `"'`)
}

func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "na", "n/a", "nan", "null", "none", "#n/a":
		return true
	}
	return false
}
