/*
duration.go - Time codec for lieu-time durations

PURPOSE:
  Users type durations into a weekly grid one keystroke at a time. The codec
  turns whatever they typed into a signed number of minutes and renders
  minutes back as the canonical display form used on every surface.

CANONICAL FORM:
  "HH:MM"    positive or zero, both fields zero-padded to at least 2 digits
  "(HH:MM)"  negative, magnitude wrapped in parentheses
  Hours are never truncated: 100 hours renders as "100:00".

LENIENCY:
  Parsing never fails. Anything it cannot understand (letters, two colons,
  a decimal point next to a colon) becomes zero. A half-typed value must
  never block the grid.

ACCEPTED INPUT:
  "8"      -> 08:00
  "8:30"   -> 08:30
  "8.5"    -> 08:30   (decimal hours, rounded to the nearest minute)
  ":45"    -> 00:45
  "1:90"   -> 02:30   (minute overflow is carried)
  "(2:00)" -> (02:00)
  "-2"     -> (02:00)

LAW:
  ToMinutes(ToCanonical(m)) == m for every integer m.

SEE ALSO:
  - balance.go: consumes Duration values
  - types.go: Entry carries Duration fields
*/
package toil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DURATION - Signed minutes
// =============================================================================

// Duration is a signed number of minutes.
type Duration int

const (
	Minute Duration = 1
	Hour   Duration = 60
)

// Hours builds a Duration from whole hours.
func Hours(h int) Duration { return Duration(h) * Hour }

// Minutes returns the raw signed minute count.
func (d Duration) Minutes() int { return int(d) }

// Hours returns the duration as decimal hours, e.g. 510 minutes -> 8.5.
func (d Duration) Hours() decimal.Decimal {
	return decimal.NewFromInt(int64(d)).Div(decimal.NewFromInt(60))
}

func (d Duration) IsZero() bool     { return d == 0 }
func (d Duration) IsNegative() bool { return d < 0 }

func (d Duration) String() string { return ToCanonical(int(d)) }

// MarshalJSON renders the canonical string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string (lenient) or a JSON number of hours.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = ParseDuration(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or a number of hours: %w", err)
	}
	*d = ParseDuration(n.String())
	return nil
}

// =============================================================================
// CODEC
// =============================================================================

// ParseDuration normalizes loosely formatted input. Malformed input is zero.
func ParseDuration(input string) Duration {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	} else if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimSpace(s[1:])
	}

	minutes, ok := parseMagnitude(s)
	if !ok {
		return 0
	}
	if negative {
		minutes = -minutes
	}
	return Duration(minutes)
}

// NormalizeDuration returns the canonical string for loosely formatted input.
func NormalizeDuration(input string) string {
	return ParseDuration(input).String()
}

// ToMinutes converts a canonical (or loosely formatted) duration to signed minutes.
func ToMinutes(duration string) int {
	return ParseDuration(duration).Minutes()
}

// ToCanonical renders signed minutes as "HH:MM" or "(HH:MM)".
func ToCanonical(minutes int) string {
	if minutes < 0 {
		// -minutes overflows for math.MinInt; split before negating.
		h, m := -(minutes / 60), -(minutes % 60)
		return fmt.Sprintf("(%02d:%02d)", h, m)
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func parseMagnitude(s string) (int, bool) {
	if s == "" {
		return 0, true
	}

	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		if strings.Contains(s, ".") {
			return parseDecimalHours(s)
		}
		h, ok := parseDigits(s)
		return h * 60, ok
	case 2:
		h, ok := parseDigits(parts[0])
		if !ok {
			return 0, false
		}
		m, ok := parseDigits(parts[1])
		if !ok {
			return 0, false
		}
		return h*60 + m, true
	default:
		return 0, false
	}
}

// parseDigits accepts an empty string as zero so "8:" and ":30" work mid-typing.
func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseDecimalHours(s string) (int, bool) {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return 0, false
		}
	}
	if s == "." {
		return 0, true
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	hours, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	minutes := hours.Mul(decimal.NewFromInt(60)).Round(0)
	return int(minutes.IntPart()), true
}
