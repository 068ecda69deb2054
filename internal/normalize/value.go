package normalize

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses a numeric value written in either European (1.234,56)
// or US (1,234.56) notation.
//
// Already-numeric input is accepted unchanged. For strings every character
// other than digits, '.', ',' and '-' is discarded first, so currency labels
// and spacing are tolerated. A separator is kept only when a digit follows it
// and no letter precedes it ("Bs. 5" is 5, ".5" is 0.5). Separator
// disambiguation:
//   - both ',' and '.': the later one is the decimal mark, the other is grouping
//   - only ',': a single comma is decimal, several are grouping
//   - only '.': a single dot is decimal, several are grouping
//
// Unparseable input reports false; it is never an error.
func ParseDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return val, true
	case *decimal.Decimal:
		if val == nil {
			return decimal.Zero, false
		}
		return *val, true
	case float64:
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case *float64:
		if val == nil {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(*val), true
	case string:
		return parseDecimalString(val)
	default:
		return decimal.Zero, false
	}
}

// ParseNumber is ParseDecimal reported as a float64, the representation
// persisted in records.
func ParseNumber(v any) (float64, bool) {
	d, ok := ParseDecimal(v)
	if !ok {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func parseDecimalString(raw string) (decimal.Decimal, bool) {
	rs := []rune(raw)
	var b strings.Builder
	for i, r := range rs {
		switch {
		case isDigit(r) || r == '-':
			b.WriteRune(r)
		case r == '.' || r == ',':
			// A separator counts only between a non-letter and a digit, so
			// the dot of a label such as "Bs." is dropped while ".5" keeps it.
			if i+1 < len(rs) && isDigit(rs[i+1]) && (i == 0 || !unicode.IsLetter(rs[i-1])) {
				b.WriteRune(r)
			}
		}
	}
	s := b.String()
	if s == "" {
		return decimal.Zero, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var dmyLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006",
}

// ParseDate accepts time.Time values unchanged, otherwise tries ISO-8601 and
// then day/month/year with slash separators. A trailing time of day after the
// date is tolerated. Unparseable input reports false.
func ParseDate(v any) (time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil || val.IsZero() {
			return time.Time{}, false
		}
		return *val, true
	case string:
		s := Clean(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		for _, layout := range dmyLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		// "12/03/2024 (10:30)" and similar decorations: keep the date token.
		if first, _, found := strings.Cut(s, " "); found {
			for _, layout := range dmyLayouts[2:] {
				if t, err := time.Parse(layout, first); err == nil {
					return t, true
				}
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// AffirmativeToken is the source locale's "yes".
const AffirmativeToken = "si"

// ParseBool maps the affirmative token (case and accent insensitive) to true
// and any other present value to false. The second result is false when the
// input is absent or blank.
func ParseBool(v any) (bool, bool) {
	switch val := v.(type) {
	case nil:
		return false, false
	case bool:
		return val, true
	case *bool:
		if val == nil {
			return false, false
		}
		return *val, true
	case string:
		key := MatchKey(val)
		if key == "" {
			return false, false
		}
		return key == AffirmativeToken, true
	default:
		return false, false
	}
}
