package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conceptkit/ckit/internal/codegen"
)

func TestErrorFormatsAllFields(t *testing.T) {
	err := &codegen.Error{Language: "go", Concept: "Echo", Feature: "types", Message: "unsupported kind"}
	require.Equal(t, "codegen[go]: Echo: types: unsupported kind", err.Error())
}
