package cronexpr

import (
	"math/bits"
	"strconv"
	"strings"
)

// Field is the set of accepted values for one calendar dimension, stored as a
// bitset where bit v is set when value v matches.
type Field uint64

// Has reports whether v is a member of the field.
func (f Field) Has(v int) bool {
	if v < 0 || v > 63 {
		return false
	}
	return f&(1<<uint(v)) != 0
}

// next returns the smallest member >= v.
func (f Field) next(v int) (int, bool) {
	if v > 63 {
		return 0, false
	}
	if v < 0 {
		v = 0
	}
	rest := uint64(f) >> uint(v)
	if rest == 0 {
		return 0, false
	}
	return v + bits.TrailingZeros64(rest), true
}

// Values returns the members in ascending order.
func (f Field) Values() []int {
	values := make([]int, 0, bits.OnesCount64(uint64(f)))
	for rest := uint64(f); rest != 0; rest &= rest - 1 {
		values = append(values, bits.TrailingZeros64(rest))
	}
	return values
}

// String renders the field as a canonical comma separated list.
func (f Field) String() string {
	values := f.Values()
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// span builds the set {lo, lo+step, ...} capped at hi.
func span(lo, hi, step int) Field {
	var f Field
	for v := lo; v <= hi; v += step {
		f |= 1 << uint(v)
	}
	return f
}

// bounds describes the valid domain of a field.
type bounds struct {
	name  string
	min   int
	max   int
	names map[string]int
}

var (
	secondBounds = bounds{name: "second", min: 0, max: 59}
	minuteBounds = bounds{name: "minute", min: 0, max: 59}
	hourBounds   = bounds{name: "hour", min: 0, max: 23}
	domBounds    = bounds{name: "day-of-month", min: 1, max: 31}
	monthBounds  = bounds{name: "month", min: 1, max: 12, names: map[string]int{
		"jan": 1,
		"feb": 2,
		"mar": 3,
		"apr": 4,
		"may": 5,
		"jun": 6,
		"jul": 7,
		"aug": 8,
		"sep": 9,
		"oct": 10,
		"nov": 11,
		"dec": 12,
	}}
	dowBounds = bounds{name: "day-of-week", min: 0, max: 6, names: map[string]int{
		"sun": 0,
		"mon": 1,
		"tue": 2,
		"wed": 3,
		"thu": 4,
		"fri": 5,
		"sat": 6,
	}}
)

// fieldBounds is indexed by field position in an expression.
var fieldBounds = [6]bounds{secondBounds, minuteBounds, hourBounds, domBounds, monthBounds, dowBounds}

func (b bounds) full() Field {
	return span(b.min, b.max, 1)
}
