package dsl

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// NewParseError builds a structured parse diagnostic using gqlparser's
// gqlerror.Error shape, so every tool in this module — the compiler CLI,
// test harnesses, editor integrations — reports concept/sync syntax
// errors in the same {message, locations} shape as GraphQL tooling
// already understands. The concept/sync grammar itself is not GraphQL;
// only the error envelope is reused.
func NewParseError(pos Position, format string, args ...any) *gqlerror.Error {
	return &gqlerror.Error{
		Message: fmt.Sprintf(format, args...),
		Locations: []gqlerror.Location{
			{Line: pos.Line, Column: pos.Column},
		},
		Extensions: map[string]any{
			"file": pos.File,
		},
	}
}
