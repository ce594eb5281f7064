package store

import (
	"hash/fnv"
	"sort"
	"sync"
)

const stripeCount = 64

// keyLocks serializes store writers per key without a global lock. Keys hash
// onto a fixed set of stripes; writers take every stripe their key set maps
// to, always in ascending order so two writers can never deadlock on each
// other.
type keyLocks struct {
	stripes [stripeCount]sync.Mutex
}

func stripeFor(name string) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	return int(h.Sum32() % stripeCount)
}

// acquire locks the stripes covering names and returns a release function.
// Duplicate names collapse onto one stripe acquisition.
func (kl *keyLocks) acquire(names []string) func() {
	seen := make(map[int]bool, len(names))
	for _, name := range names {
		seen[stripeFor(name)] = true
	}
	stripes := make([]int, 0, len(seen))
	for s := range seen {
		stripes = append(stripes, s)
	}
	sort.Ints(stripes)

	for _, s := range stripes {
		kl.stripes[s].Lock()
	}
	return func() {
		for i := len(stripes) - 1; i >= 0; i-- {
			kl.stripes[stripes[i]].Unlock()
		}
	}
}
