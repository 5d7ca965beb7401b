// Package idgen generates the globally-unique, causally ordered ids used
// for action records. Ids are process-local monotonic counters, never a
// central allocator, so that id order is a reliable tiebreaker when two
// records share a timestamp.
package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator hands out strictly increasing action-record ids prefixed with
// a per-process instance tag, so ids stay globally unique across kernel
// processes without coordination.
type Generator struct {
	instance string
	counter  uint64
}

// NewGenerator seeds a Generator. Production callers should pass a random
// seed (e.g. derived from uuid.New()); tests should pass a fixed seed so
// id sequences stay reproducible and resettable across runs.
func NewGenerator(seed uint64) *Generator {
	return &Generator{
		instance: fmt.Sprintf("%08x", seed),
		counter:  0,
	}
}

// NewProcessGenerator seeds a Generator from a random instance tag. Use
// this in production; tests should use NewGenerator with a fixed seed.
func NewProcessGenerator() *Generator {
	return NewGenerator(uuid.New().ID())
}

// Next returns the next id for this generator, monotonically increasing
// within the process lifetime of g.
func (g *Generator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-%016x", g.instance, n)
}

// NewFlowID returns a new random flow identifier. Flow ids need only be
// globally unique, not ordered, so a UUID is enough.
func NewFlowID() string {
	return uuid.New().String()
}
