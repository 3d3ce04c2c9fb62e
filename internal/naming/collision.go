package naming

import (
	"fmt"
	"sync"
)

// CollisionResolver tracks artifact stems claimed by source files and
// resolves duplicates by appending "_dupN". Two sources whose titles
// sanitize to the same stem must never overwrite each other's artifacts.
// All methods are goroutine-safe.
type CollisionResolver struct {
	mu       sync.Mutex
	owners   map[string]string // stem → source path that owns it
	counters map[string]int    // requested stem → next dup counter
}

// NewCollisionResolver creates a ready-to-use resolver.
func NewCollisionResolver() *CollisionResolver {
	return &CollisionResolver{
		owners:   make(map[string]string),
		counters: make(map[string]int),
	}
}

// Resolve returns the stem source should use. If stem is unclaimed (or
// already owned by source) it is returned as-is.
func (cr *CollisionResolver) Resolve(source, stem string) string {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	owner, exists := cr.owners[stem]
	if !exists || owner == source {
		cr.owners[stem] = source
		return stem
	}

	counter := cr.counters[stem]
	if counter == 0 {
		counter = 1
	}

	for {
		candidate := fmt.Sprintf("%s_dup%d", stem, counter)
		cOwner, cExists := cr.owners[candidate]
		if !cExists || cOwner == source {
			cr.counters[stem] = counter + 1
			cr.owners[candidate] = source
			return candidate
		}
		counter++
	}
}

// Claim records that source owns stem without resolving it. Used to seed the
// resolver with stems persisted by earlier runs. An existing owner wins.
func (cr *CollisionResolver) Claim(source, stem string) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if _, exists := cr.owners[stem]; !exists {
		cr.owners[stem] = source
	}
}
