// Package ferr defines the caller-fault error taxonomy shared by analyzer
// and trie (§7): invalid arguments fail fast, before any work begins, and
// are distinguishable from data-fault conditions (which are absorbed
// silently elsewhere in this module).
package ferr

import (
	"errors"
	"fmt"
)

// InvalidArgumentError marks a caller-fault: a negative K, an unknown
// order enum, an empty symbol for an overhead query, and similar. It is
// always returned before any work is performed.
type InvalidArgumentError struct {
	msg string
}

func (e *InvalidArgumentError) Error() string { return e.msg }

// InvalidArgument builds an InvalidArgumentError with a formatted message.
func InvalidArgument(format string, args ...interface{}) error {
	return &InvalidArgumentError{msg: fmt.Sprintf(format, args...)}
}

// IsInvalidArgument reports whether err is (or wraps) an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}
