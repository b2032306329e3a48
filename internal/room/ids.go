package room

import (
	"fmt"
	"sync"
)

// DefaultSeed namespaces lobby ids when no seed is given.
const DefaultSeed = "main"

var (
	idMu       sync.Mutex
	idCounters = make(map[string]int)
)

// NextID returns the next room id for seed: game#<seed>#1, game#<seed>#2, ...
// Counters are process-wide and independent per seed.
func NextID(seed string) string {
	if seed == "" {
		seed = DefaultSeed
	}

	idMu.Lock()
	idCounters[seed]++
	n := idCounters[seed]
	idMu.Unlock()

	return fmt.Sprintf("game#%s#%d", seed, n)
}
