// Package parser extracts numeric magnitudes and units from raw measurement
// values reported by stations.
package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// numericChars is every character that may appear in a decimal number
// literal. Scanning stops at the first character outside this set so that
// "inf", "nan" and hex literals are never treated as numbers.
const numericChars = "0123456789+-.eE"

// ParseValue splits a raw value into its numeric magnitude and trailing unit.
// The longest prefix that parses as a real number wins; the rest of the string
// is the unit. Blanks around the number are skipped, so "5 C" has unit "C".
// When no prefix parses, ok is false, num is NaN and unit holds the whole
// input.
func ParseValue(value string) (num float64, unit string, ok bool) {
	start := len(value) - len(strings.TrimLeft(value, " \t"))

	end := -1
	num = math.NaN()
	for i := start + 1; i <= len(value); i++ {
		if !strings.ContainsRune(numericChars, rune(value[i-1])) {
			break
		}
		if v, err := strconv.ParseFloat(value[start:i], 64); err == nil {
			end = i
			num = v
		}
	}

	if end < 0 {
		return math.NaN(), value, false
	}

	return num, strings.TrimLeft(value[end:], " \t"), true
}

// Round2 rounds half away from zero to two decimal places.
func Round2(num float64) float64 {
	return math.Round(num*100) / 100
}

// FormatValue renders a number for display: two decimals, fixed width, unit
// appended with no separator.
func FormatValue(num float64, unit string) string {
	return fmt.Sprintf("%8.2f", Round2(num)) + unit
}

// Display renders a raw value for display. Numeric values are rounded and
// padded, anything else is returned unchanged.
func Display(value string) string {
	num, unit, ok := ParseValue(value)
	if !ok {
		return value
	}
	return FormatValue(num, unit)
}

// Label renders a rounded number and its unit as a category label, always
// with at least one fractional digit ("10.0W", "12.25W").
func Label(num float64, unit string) string {
	s := strconv.FormatFloat(Round2(num), 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s + unit
}
