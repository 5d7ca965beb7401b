// Package codegen implements the code generators: a pure function from a
// manifest.Manifest to a set of generated files. Each target language
// lives in its own subpackage (golang, typescript) and implements the
// Generator interface here.
package codegen

import "github.com/conceptkit/ckit/internal/manifest"

// File is one generated source file, relative to the generator's output
// root.
type File struct {
	Path    string
	Content string
}

// Error reports that a manifest feature cannot be represented in a
// target language.
type Error struct {
	Language string
	Concept  string
	Feature  string
	Message  string
}

func (e *Error) Error() string {
	return "codegen[" + e.Language + "]: " + e.Concept + ": " + e.Feature + ": " + e.Message
}

// Generator produces a concept's generated bundle: at minimum a types
// declaration, a handler contract, and a transport adapter, plus a
// conformance test file when the manifest carries invariants.
type Generator interface {
	Language() string
	Generate(m *manifest.Manifest) ([]File, error)
}
