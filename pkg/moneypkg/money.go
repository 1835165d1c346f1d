// Package moneypkg provides fixed-point money parsing and formatting.
package moneypkg

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places every amount is kept with.
const Places = 2

var (
	// ErrInvalidAmount indicates that the amount is not a decimal number.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrTooPrecise indicates that the amount has more than two decimal places.
	ErrTooPrecise = errors.New("amount must have at most 2 decimal places")
	// ErrTooLarge indicates that the amount does not fit into the ledger columns.
	ErrTooLarge = errors.New("amount is too large")
)

// Max is the exclusive upper bound of any amount or balance.
var Max = decimal.New(1, maxExponent)

const (
	maxExponent = 15
	// minExponent allows trailing zeros such as "10.500" but keeps the rescale
	// done by Truncate and Cmp small.
	minExponent = -18
)

// Parse converts s into a decimal amount with at most two decimal places.
//
// The sign is not checked.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}

	// Exponents are range checked before any arithmetic: rescaling 1e-2000000000
	// costs time and memory proportional to the exponent.
	switch exp := d.Exponent(); {
	case exp < minExponent:
		return decimal.Zero, ErrTooPrecise
	case exp > maxExponent && !d.IsZero():
		return decimal.Zero, ErrTooLarge
	case exp > maxExponent:
		return decimal.Zero, nil
	}

	if !d.Equal(d.Truncate(Places)) {
		return decimal.Zero, ErrTooPrecise
	}

	if d.Abs().GreaterThanOrEqual(Max) {
		return decimal.Zero, ErrTooLarge
	}

	return d, nil
}

// String formats d with exactly two decimal places.
func String(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// JSON renders d as a JSON number with two decimal places.
func JSON(d decimal.Decimal) json.Number {
	return json.Number(String(d))
}
