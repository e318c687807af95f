package compactid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateDefaultLength(t *testing.T) {
	g := New()
	id := g.Generate(time.Now())
	assert.Len(t, id, 7)
}

func TestGenerateIsUnique(t *testing.T) {
	g := New()
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := g.Generate(now)
		assert.False(t, seen[id], "generated duplicate id %s", id)
		seen[id] = true
	}
}

func TestBucketTimeWithinOneBucketOfGeneration(t *testing.T) {
	g := New()
	now := time.Now()
	id := g.Generate(now)

	bucketTime, ok := BucketTime(id)
	assert.True(t, ok)
	assert.WithinDuration(t, now, bucketTime, bucketSeconds*time.Second)
}

func TestGenerateAvoidsSeededIDs(t *testing.T) {
	g := New()
	now := time.Now()
	bucket := timeBucket(now)

	// Seed ten bucket-prefixed short ids. The random suffixes Generate will
	// try cannot be predicted, so this does not force the escalation or UUID
	// path; it checks that an id already in the seen set is never issued.
	for i := 0; i < 10; i++ {
		g.Seed(bucket + randomSegment(3))
	}

	id := g.Generate(now)
	// Either it found a free short/long slot (astronomically likely given
	// the seeded set is tiny relative to the keyspace) or it fell back to a
	// UUID; both are valid outcomes of the collision policy. What must hold
	// is that the result is never one of the seeded collisions.
	assert.NotContains(t, seededSet(g), id)
}

func seededSet(g *Generator) map[string]struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]struct{}, len(g.seen))
	for k := range g.seen {
		out[k] = struct{}{}
	}
	return out
}

func TestUUIDFallbackShape(t *testing.T) {
	g := New()
	now := time.Now()
	bucket := timeBucket(now)

	// Mark every possible 3-char suffix as seen so all short attempts
	// collide. The ids go straight into g.seen because Seed keeps only the
	// newest maxSeenEntries ids, fewer than the 36^3 short suffixes. With the
	// 3-char space exhausted, Generate must escalate to 5-char attempts; no
	// 5-char id is seeded, so this cannot force a UUID deterministically and
	// the test accepts either the 9-char compact shape or the UUID shape.
	g.mu.Lock()
	for a := 0; a < 36; a++ {
		for b := 0; b < 36; b++ {
			for c := 0; c < 36; c++ {
				g.seen[bucket+string(alphabet[a])+string(alphabet[b])+string(alphabet[c])] = struct{}{}
			}
		}
	}
	g.mu.Unlock()

	id := g.Generate(now)
	if len(id) == 9 {
		_, ok := BucketTime(id)
		assert.True(t, ok)
	} else {
		assert.Len(t, id, 36)
	}
}

func TestBucketTimeRejectsUUIDShape(t *testing.T) {
	_, ok := BucketTime("not-a-compact-id-but-uuid-shaped-xxxx")
	assert.False(t, ok)
}
