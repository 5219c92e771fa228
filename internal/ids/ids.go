// Package ids issues the provisional identifiers records carry until the
// backing store confirms its own.
package ids

import (
	"io"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator issues monotonic ULIDs. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator returns a generator reading the time from now. A nil now uses
// time.Now.
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
		now:     now,
	}
}

// New returns the next identifier. Identifiers issued within the same
// millisecond still sort in issue order.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

var std = NewGenerator(nil)

// New returns an identifier from the process-wide generator.
func New() string { return std.New() }

// IsProvisional reports whether id has the shape issued by a Generator.
func IsProvisional(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}
