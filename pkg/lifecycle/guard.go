package lifecycle

import (
	"sync"

	"github.com/shishobooks/readtrack/pkg/models"
)

// guard tracks the sources that have a transition in flight.
type guard struct {
	mu       sync.Mutex
	inflight map[models.Ref]struct{}
}

func newGuard() *guard {
	return &guard{inflight: map[models.Ref]struct{}{}}
}

// acquire returns false if ref is already held.
func (g *guard) acquire(ref models.Ref) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.inflight[ref]; ok {
		return false
	}
	g.inflight[ref] = struct{}{}
	return true
}

func (g *guard) release(ref models.Ref) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, ref)
}

// held reports whether a transition is running for ref.
func (g *guard) held(ref models.Ref) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inflight[ref]
	return ok
}
