package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ASINs are 10-character alphanumeric Amazon catalog codes.
var asinPattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

var ErrInvalidASIN = errors.New("invalid ASIN: expected 10 alphanumeric characters")

// NormalizeASIN trims and uppercases a candidate ASIN and validates it
// against the fixed pattern. Invalid codes never reach the fetch step.
func NormalizeASIN(s string) (string, error) {
	asin := strings.ToUpper(strings.TrimSpace(s))
	if !asinPattern.MatchString(asin) {
		return "", fmt.Errorf("%w: %q", ErrInvalidASIN, s)
	}
	return asin, nil
}

// ValidASIN reports whether s is a well-formed ASIN after normalization.
func ValidASIN(s string) bool {
	_, err := NormalizeASIN(s)
	return err == nil
}
