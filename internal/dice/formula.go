// Package dice parses NdM+K dice formulas and rolls them.
package dice

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrMalformedFormula indicates a formula failed grammar or range validation.
var ErrMalformedFormula = errors.New("malformed dice formula")

// Resource bounds applied by DefaultLimits. They are also hard ceilings:
// Limits above them are capped, so MaxDice*MaxSides+MaxModifier always fits
// in an int32.
const (
	MaxDice     = 1000
	MaxSides    = 1_000_000
	MaxModifier = 1_000_000
	MinSides    = 2
)

// Limits bounds the formulas a caller accepts. A formula outside the limits
// is malformed, it is never rolled.
type Limits struct {
	MaxDice     int
	MaxSides    int
	MaxModifier int
}

// DefaultLimits returns the limits used by Validate and Parse.
func DefaultLimits() Limits {
	return Limits{
		MaxDice:     MaxDice,
		MaxSides:    MaxSides,
		MaxModifier: MaxModifier,
	}
}

// capped clamps l to the package ceilings.
func (l Limits) capped() Limits {
	return Limits{
		MaxDice:     min(l.MaxDice, MaxDice),
		MaxSides:    min(l.MaxSides, MaxSides),
		MaxModifier: min(l.MaxModifier, MaxModifier),
	}
}

// Formula is a parsed NdM+K expression.
type Formula struct {
	Count    int
	Sides    int
	Modifier int
}

// The separator is case-insensitive. No whitespace is allowed anywhere.
var formulaPattern = regexp.MustCompile(`^([0-9]+)[dD]([0-9]+)(?:([+-])([0-9]+))?$`)

// Validate reports whether formula is well formed under DefaultLimits.
func Validate(formula string) bool {
	_, err := Parse(formula)
	return err == nil
}

// Parse parses formula under DefaultLimits.
func Parse(formula string) (Formula, error) {
	return DefaultLimits().Parse(formula)
}

// Validate reports whether formula is well formed under l.
func (l Limits) Validate(formula string) bool {
	_, err := l.Parse(formula)
	return err == nil
}

// Parse parses formula, returning an error wrapping ErrMalformedFormula when
// it does not match NdM[+|-K] or falls outside l. Fields of l above the
// package ceilings are capped.
func (l Limits) Parse(formula string) (Formula, error) {
	l = l.capped()
	m := formulaPattern.FindStringSubmatch(formula)
	if m == nil {
		return Formula{}, fmt.Errorf("%w: %q does not match NdM[+|-K]", ErrMalformedFormula, formula)
	}

	count, err := strconv.Atoi(m[1])
	if err != nil || count < 1 || count > l.MaxDice {
		return Formula{}, fmt.Errorf("%w: die count must be between 1 and %d", ErrMalformedFormula, l.MaxDice)
	}

	sides, err := strconv.Atoi(m[2])
	if err != nil || sides < MinSides || sides > l.MaxSides {
		return Formula{}, fmt.Errorf("%w: face count must be between %d and %d", ErrMalformedFormula, MinSides, l.MaxSides)
	}

	modifier := 0
	if m[4] != "" {
		modifier, err = strconv.Atoi(m[4])
		if err != nil || modifier > l.MaxModifier {
			return Formula{}, fmt.Errorf("%w: modifier must be at most %d", ErrMalformedFormula, l.MaxModifier)
		}
		if m[3] == "-" {
			modifier = -modifier
		}
	}

	return Formula{Count: count, Sides: sides, Modifier: modifier}, nil
}
