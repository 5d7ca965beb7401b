package manifest

import (
	"fmt"

	"github.com/conceptkit/ckit/internal/dsl"
)

// Violation mirrors a common IR-violation shape: a message plus an
// optional source location, so manifest errors render identically to
// parse errors in any tool that prints both.
type Violation struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationError collects every Violation found while building a
// manifest; Build aborts and returns all of them together rather than
// stopping at the first.
type ValidationError []*Violation

func (e ValidationError) Error() string {
	msg := "manifest violations:\n"
	for _, v := range e {
		line := "- " + v.Message
		if v.File != "" {
			line += fmt.Sprintf(" %s:%d:%d", v.File, v.Line, v.Column)
		}
		msg += line + "\n"
	}
	return msg
}

func newViolation(file string, pos dsl.Position, format string, args ...any) *Violation {
	return &Violation{
		Message: fmt.Sprintf(format, args...),
		File:    file,
		Line:    pos.Line,
		Column:  pos.Column,
	}
}
