package parser

import "fmt"

// ParseError reports which field failed to parse and on which line of the
// block. Callers add the block's own offset when logging so the line number
// points into the original message body.
type ParseError struct {
	Field     string
	LineIndex int
	RawLine   string
}

func (e *ParseError) Error() string {
	if e.RawLine == "" {
		return fmt.Sprintf("parse %s: line %d missing", e.Field, e.LineIndex)
	}
	return fmt.Sprintf("parse %s: line %d %q does not match", e.Field, e.LineIndex, e.RawLine)
}
