package models

import (
	"errors"
	"strings"
)

var ErrNotFound = errors.New("not found")

// ValidationError lists the request fields that were missing or malformed.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid or missing fields: " + strings.Join(e.Fields, ", ")
}
