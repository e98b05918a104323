package utils

import (
	"github.com/pkg/errors"
)

// NewOutOfRangeError is used when a configured value lies outside its allowed range.
func NewOutOfRangeError(name string, value, lo, hi float64) error {
	return errors.Errorf("%s must be between %v and %v, got %v", name, lo, hi, value)
}
