package cronexpr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Parse turns a six field expression (second minute hour day-of-month month
// day-of-week) into a Schedule.
//
// Each field is a comma separated list of items. An item is one of
// "*", "?", "N", "N-M", "*/S", "N/S" or "N-M/S". Month and day-of-week
// values may also be written as three letter English names.
func Parse(text string) (*Schedule, error) {
	tokens := strings.Fields(text)
	if len(tokens) != len(fieldBounds) {
		return nil, fmt.Errorf("%w: got %d in %q", ErrWrongFieldCount, len(tokens), text)
	}

	var (
		fields   [6]Field
		wildcard [6]bool
	)
	for i, token := range tokens {
		field, wild, err := parseField(token, fieldBounds[i])
		if err != nil {
			return nil, &FieldError{
				Index:  i,
				Name:   fieldBounds[i].name,
				Token:  token,
				Reason: err.Error(),
			}
		}
		fields[i] = field
		wildcard[i] = wild
	}

	return &Schedule{
		Second:      fields[0],
		Minute:      fields[1],
		Hour:        fields[2],
		DayOfMonth:  fields[3],
		Month:       fields[4],
		DayOfWeek:   fields[5],
		domWildcard: wildcard[3],
		dowWildcard: wildcard[5],
		expression:  strings.Join(tokens, " "),
	}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) *Schedule {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

// parseField resolves a comma separated list. The second result reports
// whether any item was an unrestricted wildcard.
func parseField(token string, b bounds) (Field, bool, error) {
	var (
		field    Field
		wildcard bool
	)
	for _, item := range strings.Split(token, ",") {
		f, wild, err := parseItem(item, b)
		if err != nil {
			return 0, false, err
		}
		field |= f
		wildcard = wildcard || wild
	}
	if field == 0 {
		return 0, false, errors.New("matches no values")
	}
	return field, wildcard, nil
}

func parseItem(item string, b bounds) (Field, bool, error) {
	if item == "" {
		return 0, false, errors.New("empty list item")
	}

	rangePart, stepPart, hasStep := strings.Cut(item, "/")
	step := 1
	if hasStep {
		if strings.Contains(stepPart, "/") {
			return 0, false, fmt.Errorf("too many '/' in %q", item)
		}
		n, err := parseNumber(stepPart)
		if err != nil {
			return 0, false, fmt.Errorf("bad step in %q: %w", item, err)
		}
		if n < 1 {
			return 0, false, fmt.Errorf("step must be at least 1, got %d", n)
		}
		step = n
	}

	if rangePart == "*" || rangePart == "?" {
		return span(b.min, b.max, step), step == 1, nil
	}

	loPart, hiPart, isRange := strings.Cut(rangePart, "-")
	lo, err := b.value(loPart)
	if err != nil {
		return 0, false, err
	}
	hi := lo
	switch {
	case isRange:
		if hi, err = b.value(hiPart); err != nil {
			return 0, false, err
		}
		if lo > hi {
			return 0, false, fmt.Errorf("range start %d is after end %d", lo, hi)
		}
	case hasStep:
		hi = b.max
	}

	return span(lo, hi, step), false, nil
}

// value parses a single number or name and checks it against the domain.
func (b bounds) value(text string) (int, error) {
	if n, ok := b.names[strings.ToLower(text)]; ok {
		return n, nil
	}
	n, err := parseNumber(text)
	if err != nil {
		return 0, err
	}
	if n < b.min || n > b.max {
		return 0, fmt.Errorf("value %d out of range [%d, %d]", n, b.min, b.max)
	}
	return n, nil
}

func parseNumber(text string) (int, error) {
	if text == "" {
		return 0, errors.New("missing number")
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not a number", text)
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", text)
	}
	return n, nil
}
