package swt

import (
	"errors"
	"fmt"

	"github.com/rexliu/swtedit/pkg/xmltree"
)

// MalformedXMLError is returned when the source text is not well-formed
// XML. No document is produced.
type MalformedXMLError struct {
	// Diagnostic is the parser's message.
	Diagnostic string
	// Line is the 1-based line the parser stopped at, or 0 when unknown.
	Line int
	err  error
}

func (e *MalformedXMLError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed XML (line %d): %s", e.Line, e.Diagnostic)
	}
	return "malformed XML: " + e.Diagnostic
}

func (e *MalformedXMLError) Unwrap() error {
	return e.err
}

func malformed(err error) error {
	var serr *xmltree.SyntaxError
	if errors.As(err, &serr) {
		return &MalformedXMLError{Diagnostic: serr.Msg, Line: serr.Line, err: err}
	}
	return &MalformedXMLError{Diagnostic: err.Error(), err: err}
}
