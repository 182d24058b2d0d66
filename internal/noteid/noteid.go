// Package noteid generates timestamp-derived note identifiers.
package noteid

import (
	"fmt"
	"regexp"
	"sync"
	"time"
)

// Layout is the timestamp component of an id: second precision,
// lexicographically sortable.
const Layout = "20060102150405"

var idRe = regexp.MustCompile(`^\d{14}\d{3,}$`)

// Generator produces unique, sortable ids. Ids generated within the same
// second get an incremented counter suffix, so rapid creation never
// collides in-process.
type Generator struct {
	mu      sync.Mutex
	last    string
	counter int
	now     func() time.Time
}

// NewGenerator creates a Generator using the wall clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// NewGeneratorAt creates a Generator with a custom clock, for tests.
func NewGeneratorAt(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Next returns a fresh id: timestamp plus a three-digit counter that resets
// whenever the timestamp advances.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now().Format(Layout)
	if ts == g.last {
		g.counter++
	} else {
		g.last = ts
		g.counter = 0
	}
	return fmt.Sprintf("%s%03d", ts, g.counter)
}

// Valid reports whether s looks like a generated id. A trailing suffix
// longer than three digits is allowed: collision resolution on create may
// append further digits.
func Valid(s string) bool {
	return idRe.MatchString(s)
}
