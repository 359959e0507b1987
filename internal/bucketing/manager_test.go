package bucketing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOwnerBucket_StableAndInRange(t *testing.T) {
	bm := NewBucketingManager(16)

	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("STEAM_session-%d", i)
		b := bm.OwnerBucket(id)
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 16)
		assert.Equal(t, b, bm.OwnerBucket(id))
	}
}

func TestOwnerBucket_Spreads(t *testing.T) {
	bm := NewBucketingManager(8)
	seen := make(map[int]bool)
	for i := 0; i < 500; i++ {
		seen[bm.OwnerBucket(fmt.Sprintf("owner-%d", i))] = true
	}
	assert.Len(t, seen, 8)
}

func TestNewBucketingManager_NonPositive(t *testing.T) {
	bm := NewBucketingManager(0)
	assert.Equal(t, 1, bm.OwnerBuckets())
	assert.Equal(t, 0, bm.OwnerBucket("anything"))
}

func TestDateBucket(t *testing.T) {
	bm := NewBucketingManager(4)
	at := time.Date(2024, 5, 1, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	assert.Equal(t, "2024-05-02", bm.DateBucket(at))
}
