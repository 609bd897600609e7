package admit

import (
	"hash/fnv"
	"sync"
)

const keyLockShards = 64

// keyLock serializes operations per user identifier. Operations on the
// same key never run concurrently; operations on different keys contend
// only on shard collisions.
type keyLock struct {
	shards [keyLockShards]sync.Mutex
}

func newKeyLock() *keyLock {
	return &keyLock{}
}

// lock acquires the shard mutex for key and returns the unlock func.
func (k *keyLock) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &k.shards[h.Sum32()%keyLockShards]
	mu.Lock()
	return mu.Unlock
}
