package queue

import (
	"hash/fnv"
	"sync"
)

// HashLock provides a fixed pool of mutexes indexed by account ID, so two
// workers never run mutating jobs for the same account concurrently while
// unrelated accounts stay independent.
type HashLock [1024]sync.Mutex

// Get returns the mutex governing the given account.
func (h *HashLock) Get(accountID string) *sync.Mutex {
	f := fnv.New32a()
	_, _ = f.Write([]byte(accountID))
	return &h[f.Sum32()%uint32(len(h))]
}
