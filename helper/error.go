package helper

import "fmt"

// NewError wraps an error with a short context describing the failed operation.
func NewError(context string, err error) error {
	return fmt.Errorf("%s: %w", context, err)
}
