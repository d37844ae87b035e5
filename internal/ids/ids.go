// Package ids generates ULID identifiers for directory entities.
package ids

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator issues ULIDs stamped with its clock. Ids from one Generator sort in issue order,
// including several issued within the same millisecond.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator returns a Generator reading time from now (time.Now when nil).
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0), now: now}
}

// New returns the next identifier.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

var defaultGenerator = NewGenerator(nil)

// New returns an identifier from the process-wide generator.
func New() string {
	return defaultGenerator.New()
}

// Time extracts the timestamp of a ULID. ok is false for ids that are not ULIDs,
// such as seeded system role ids.
func Time(id string) (t time.Time, ok bool) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()).UTC(), true
}
