package classify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Interval is a closed range of message identifiers.
type Interval struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Contains reports whether id lies in the interval.
func (i Interval) Contains(id int) bool {
	return id >= i.From && id <= i.To
}

func (i Interval) String() string {
	if i.From == i.To {
		return fmt.Sprintf("0x%04x", i.From)
	}
	return fmt.Sprintf("0x%04x-0x%04x", i.From, i.To)
}

// IdentifierRange is an ordered list of closed intervals, in configuration order. Intervals may overlap.
type IdentifierRange struct {
	intervals []Interval
}

// NewIdentifierRange builds a range from intervals.
func NewIdentifierRange(intervals ...Interval) IdentifierRange {
	return IdentifierRange{intervals: append([]Interval(nil), intervals...)}
}

// Contains reports whether id lies in any interval.
func (r IdentifierRange) Contains(id int) bool {
	for _, i := range r.intervals {
		if i.Contains(id) {
			return true
		}
	}
	return false
}

// Intervals returns a copy of the intervals.
func (r IdentifierRange) Intervals() []Interval {
	return append([]Interval(nil), r.intervals...)
}

// Empty reports whether the range has no intervals.
func (r IdentifierRange) Empty() bool {
	return len(r.intervals) == 0
}

func (r IdentifierRange) String() string {
	parts := make([]string, len(r.intervals))
	for i, iv := range r.intervals {
		parts[i] = iv.String()
	}
	return strings.Join(parts, ",")
}

var errReversedRange = errors.New("range end before start")

// ConfigParseError describes one identifier token that could not be parsed.
type ConfigParseError struct {
	Token string
	Err   error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("identifier token %q: %v", e.Token, e.Err)
}

func (e *ConfigParseError) Unwrap() error {
	return e.Err
}

// ParseIdentifierRange parses comma separated identifiers and a-b ranges, e.g. "1,3,9-12,15" or
// "0x1100-0x18ff". Numbers are decimal, 0x or # prefixed hex, or 0 prefixed octal, with an optional sign.
// Malformed tokens are skipped and returned as *ConfigParseError; the valid tokens still make up the range.
func ParseIdentifierRange(s string) (IdentifierRange, []error) {
	var r IdentifierRange
	var errs []error
	if strings.TrimSpace(s) == "" {
		return r, nil
	}

	for _, token := range strings.Split(s, ",") {
		iv, err := parseInterval(token)
		if err != nil {
			errs = append(errs, &ConfigParseError{Token: strings.TrimSpace(token), Err: err})
			continue
		}
		r.intervals = append(r.intervals, iv)
	}
	return r, errs
}

func parseInterval(token string) (Interval, error) {
	if dash := strings.IndexByte(token, '-'); dash != -1 {
		from, err := decodeInt(token[:dash])
		if err != nil {
			return Interval{}, err
		}
		to, err := decodeInt(token[dash+1:])
		if err != nil {
			return Interval{}, err
		}
		if to < from {
			return Interval{}, errReversedRange
		}
		return Interval{From: from, To: to}, nil
	}

	id, err := decodeInt(token)
	if err != nil {
		return Interval{}, err
	}
	return Interval{From: id, To: id}, nil
}

// decodeInt parses a 32 bit integer with an optional sign and radix prefix.
func decodeInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty number")
	}

	digits := s
	sign := ""
	if digits[0] == '+' || digits[0] == '-' {
		sign, digits = digits[:1], digits[1:]
	}

	base := 10
	switch {
	case strings.HasPrefix(digits, "0x"), strings.HasPrefix(digits, "0X"):
		base, digits = 16, digits[2:]
	case strings.HasPrefix(digits, "#"):
		base, digits = 16, digits[1:]
	case len(digits) > 1 && digits[0] == '0':
		base, digits = 8, digits[1:]
	}
	if digits == "" || digits[0] == '+' || digits[0] == '-' {
		return 0, fmt.Errorf("invalid number %q", s)
	}

	v, err := strconv.ParseInt(sign+digits, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return int(v), nil
}
