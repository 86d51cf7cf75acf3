// Package errchain renders wrapped error chains for user-facing messages.
package errchain

import (
	"errors"
	"strings"
)

// Format renders err's message followed by one line per underlying cause,
// each prefixed with "caused by:". The cause chain is walked to exhaustion.
func Format(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(err.Error())
	for err = errors.Unwrap(err); err != nil; err = errors.Unwrap(err) {
		b.WriteString("\ncaused by: ")
		b.WriteString(err.Error())
	}
	return b.String()
}
