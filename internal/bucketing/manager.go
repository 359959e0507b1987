package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

// BucketingManager spreads partition keys over a fixed number of buckets so a
// single owner or day never becomes a hot partition.
type BucketingManager struct {
	ownerBuckets int
	hasherPool   sync.Pool
}

func NewBucketingManager(ownerBuckets int) *BucketingManager {
	if ownerBuckets <= 0 {
		ownerBuckets = 1
	}
	bm := &BucketingManager{ownerBuckets: ownerBuckets}
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return bm
}

// OwnerBucket returns a stable bucket in [0, ownerBuckets) for ownerID.
func (bm *BucketingManager) OwnerBucket(ownerID string) int {
	return bm.getBucket(ownerID, bm.ownerBuckets)
}

// SessionBucket buckets attempt rows by session so repeated retries of one
// session land together.
func (bm *BucketingManager) SessionBucket(sessionID string) int {
	return bm.getBucket(sessionID, bm.ownerBuckets)
}

func (bm *BucketingManager) DateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (bm *BucketingManager) OwnerBuckets() int {
	return bm.ownerBuckets
}

func (bm *BucketingManager) getBucket(key string, numBuckets int) int {
	return int(bm.getHash(key) % uint64(numBuckets))
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(key))
	return hasher.Sum64()
}
