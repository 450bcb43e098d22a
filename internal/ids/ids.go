// Package ids hands out integer ids that are unique among concurrently
// live ids within the process. Sessions use them for subscription and
// transaction identifiers.
package ids

import (
	"errors"
	"math"
	"sync"
)

// maxID bounds the id space. Generate fails once every id below it is
// simultaneously in use.
const maxID = math.MaxInt32

var (
	ErrExhausted = errors.New("stampede: id space exhausted")

	mu    sync.Mutex
	inUse = map[int]struct{}{}
	next  int
)

// Generate returns a fresh id. The id stays reserved until Release.
func Generate() (int, error) {
	mu.Lock()
	defer mu.Unlock()

	if len(inUse) >= maxID {
		return 0, ErrExhausted
	}

	for {
		next++
		if next > maxID {
			next = 1
		}

		if _, used := inUse[next]; !used {
			inUse[next] = struct{}{}
			return next, nil
		}
	}
}

// Release returns an id to the pool. Releasing an unknown id is a no-op.
func Release(id int) {
	mu.Lock()
	defer mu.Unlock()

	delete(inUse, id)
}
