package errors

import "github.com/qtproject/qtjsbackend/pkg/source"

// Position represents a specific location in the source code.
// Line and Column are 1-based; StartPos and EndPos are 0-based byte offsets.
type Position struct {
	Line     int                // 1-based line number
	Column   int                // 1-based column number
	StartPos int                // 0-based byte offset of the start of the span
	EndPos   int                // 0-based byte offset of the end of the span (exclusive)
	Source   *source.SourceFile // Reference to the source file, may be nil
}

// IsZero reports whether the position carries no location.
func (p Position) IsZero() bool {
	return p.Line == 0 && p.Column == 0
}
