// Package countparse converts abbreviated, locale-variant count strings
// ("1,234", "1.2k", "2,5 mil", "3M") into exact integers.
package countparse

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports a count string that could not be interpreted.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable count %q: %s", e.Input, e.Reason)
}

// countPattern splits a normalized count into its numeric portion and an
// optional trailing multiplier token. Alternatives are ordered longest
// first so "mil" is not consumed as "m" + trailing garbage.
var countPattern = regexp.MustCompile(`^([0-9.,]+) ?(mil|mi|m|k)?$`)

// multipliers maps the recognized suffix tokens to their scale.
// "mil" is the Portuguese/Spanish thousand, "mi" the Portuguese million.
var multipliers = map[string]float64{
	"":    1,
	"k":   1_000,
	"mil": 1_000,
	"m":   1_000_000,
	"mi":  1_000_000,
}

// Parse returns the non-negative integer a display count string denotes.
//
// Normalization, in order: surrounding whitespace is stripped and the
// string casefolded; a single trailing multiplier token (with at most one
// space before it) is detached; within the numeric portion, when both ','
// and '.' appear the rightmost acts as the decimal separator and the
// other is discarded as grouping; a lone separator followed by exactly
// one digit is decimal, otherwise grouping; the multiplier is applied and
// the value rounded to the nearest integer.
//
// Empty input, missing digits, or more than one multiplier token yield a
// *ParseError.
func Parse(text string) (int, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return 0, &ParseError{Input: text, Reason: "empty input"}
	}

	m := countPattern.FindStringSubmatch(normalized)
	if m == nil {
		return 0, &ParseError{Input: text, Reason: "not a count expression"}
	}
	numeric, suffix := m[1], m[2]

	decimal, err := normalizeSeparators(numeric)
	if err != nil {
		return 0, &ParseError{Input: text, Reason: err.Error()}
	}

	value, err := strconv.ParseFloat(decimal, 64)
	if err != nil {
		return 0, &ParseError{Input: text, Reason: "no numeric value"}
	}

	return int(math.Round(value * multipliers[suffix])), nil
}

// normalizeSeparators rewrites the numeric portion into a plain decimal
// literal, resolving the ','/'.' ambiguity.
func normalizeSeparators(numeric string) (string, error) {
	if !strings.ContainsAny(numeric, "0123456789") {
		return "", fmt.Errorf("no digits present")
	}

	hasComma := strings.Contains(numeric, ",")
	hasDot := strings.Contains(numeric, ".")

	switch {
	case hasComma && hasDot:
		// The rightmost separator is the decimal point, the other one is
		// grouping noise.
		if strings.LastIndex(numeric, ",") > strings.LastIndex(numeric, ".") {
			numeric = strings.ReplaceAll(numeric, ".", "")
			numeric = strings.Replace(numeric, ",", ".", 1)
		} else {
			numeric = strings.ReplaceAll(numeric, ",", "")
		}
	case hasComma:
		numeric = resolveLoneSeparator(numeric, ",")
	case hasDot:
		numeric = resolveLoneSeparator(numeric, ".")
	}

	return numeric, nil
}

// resolveLoneSeparator decides whether a single kind of separator is a
// decimal point or grouping. Exactly one trailing digit means decimal
// ("1,2k" is 1200); anything else is grouping ("1,234" is 1234).
func resolveLoneSeparator(numeric, sep string) string {
	idx := strings.LastIndex(numeric, sep)
	fractional := numeric[idx+len(sep):]
	if strings.Count(numeric, sep) == 1 && len(fractional) == 1 {
		if sep == "," {
			return strings.Replace(numeric, ",", ".", 1)
		}
		return numeric
	}
	return strings.ReplaceAll(numeric, sep, "")
}
