package messaging

import (
	"hash/fnv"
	"sync"
)

const pairStripes = 256

// pairLocks serialises work per conversation without a lock per pair. Two
// pairs may share a stripe; that only costs some parallelism.
type pairLocks struct {
	stripes [pairStripes]sync.Mutex
}

func (l *pairLocks) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%pairStripes]
	m.Lock()
	return m.Unlock
}
