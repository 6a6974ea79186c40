// Package cronexpr parses five-field POSIX cron expressions and computes
// next firing times.
//
// Supported field syntax: "*", "N", "N-M", "*/N", and comma lists of
// literal values. Day-of-month and weekday combine with standard cron OR
// semantics: when both fields are restricted, a date matches if either
// does. All computation is in UTC.
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
)

// Field bounds for the five cron fields, in expression order:
// minute, hour, day-of-month, month, weekday (0 = Sunday).
const (
	MinuteMin, MinuteMax = 0, 59
	HourMin, HourMax     = 0, 23
	DomMin, DomMax       = 1, 31
	MonthMin, MonthMax   = 1, 12
	DowMin, DowMax       = 0, 6
)

// Expression is a parsed five-field cron expression.
type Expression struct {
	minutes fieldSet
	hours   fieldSet
	dom     fieldSet
	months  fieldSet
	dow     fieldSet
}

// fieldSet holds the matching integers for one cron field.
type fieldSet struct {
	members    map[int]struct{}
	restricted bool // false when the field covers its full natural range
}

func (f fieldSet) contains(v int) bool {
	_, ok := f.members[v]
	return ok
}

// ParseField parses one cron field into its matching integers within
// [min, max]. "*" yields every value, "N" a single value, "N-M" an
// inclusive range, "*/N" every Nth value starting at min, and "a,b,c" a
// literal list returned in the given order. Any out-of-range or
// non-numeric token fails the whole field.
func ParseField(field string, min, max int) ([]int, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, fmt.Errorf("cronexpr: empty field")
	}

	switch {
	case field == "*":
		values := make([]int, 0, max-min+1)
		for v := min; v <= max; v++ {
			values = append(values, v)
		}
		return values, nil

	case strings.HasPrefix(field, "*/"):
		step, err := strconv.Atoi(field[2:])
		if err != nil {
			return nil, fmt.Errorf("cronexpr: bad step %q: %w", field, err)
		}
		if step < 1 {
			return nil, fmt.Errorf("cronexpr: step must be positive in %q", field)
		}
		var values []int
		for v := min; v <= max; v += step {
			values = append(values, v)
		}
		return values, nil

	case strings.Contains(field, ","):
		parts := strings.Split(field, ",")
		values := make([]int, 0, len(parts))
		for _, part := range parts {
			v, err := parseValue(part, min, max)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil

	case strings.Contains(field, "-"):
		lo, hi, _ := strings.Cut(field, "-")
		start, err := parseValue(lo, min, max)
		if err != nil {
			return nil, err
		}
		end, err := parseValue(hi, min, max)
		if err != nil {
			return nil, err
		}
		if start > end {
			return nil, fmt.Errorf("cronexpr: range start %d after end %d in %q", start, end, field)
		}
		values := make([]int, 0, end-start+1)
		for v := start; v <= end; v++ {
			values = append(values, v)
		}
		return values, nil

	default:
		v, err := parseValue(field, min, max)
		if err != nil {
			return nil, err
		}
		return []int{v}, nil
	}
}

// parseValue parses a single numeric token and validates its range.
func parseValue(token string, min, max int) (int, error) {
	token = strings.TrimSpace(token)
	v, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("cronexpr: non-numeric value %q: %w", token, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("cronexpr: value %d out of range [%d,%d]", v, min, max)
	}
	return v, nil
}

// Parse parses a full five-field cron expression:
// minute hour day-of-month month weekday. Any other field count fails.
func Parse(expr string) (*Expression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cronexpr: expected 5 fields, got %d in %q", len(fields), expr)
	}

	bounds := []struct {
		min, max int
	}{
		{MinuteMin, MinuteMax},
		{HourMin, HourMax},
		{DomMin, DomMax},
		{MonthMin, MonthMax},
		{DowMin, DowMax},
	}

	sets := make([]fieldSet, 5)
	for i, field := range fields {
		values, err := ParseField(field, bounds[i].min, bounds[i].max)
		if err != nil {
			return nil, fmt.Errorf("cronexpr: field %d: %w", i+1, err)
		}
		sets[i] = newFieldSet(values, bounds[i].min, bounds[i].max)
	}

	return &Expression{
		minutes: sets[0],
		hours:   sets[1],
		dom:     sets[2],
		months:  sets[3],
		dow:     sets[4],
	}, nil
}

func newFieldSet(values []int, min, max int) fieldSet {
	members := make(map[int]struct{}, len(values))
	for _, v := range values {
		members[v] = struct{}{}
	}
	return fieldSet{
		members:    members,
		restricted: len(members) != max-min+1,
	}
}
