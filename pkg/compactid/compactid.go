// Package compactid produces short, time-ordered identifiers for status
// history rows, following a "keep it cheap, fall back to a real UUID when
// you must" idiom — primary keys elsewhere in this module
// (pkg/database/repositories.go) rely on google/uuid throughout.
package compactid

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
)

// alphabet is the 36-character base used for every generated segment.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// epoch anchors the time bucket. Chosen arbitrarily at the project's start;
// what matters is that it stays fixed so IDs generated over the project's
// lifetime remain time-ordered.
var epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// bucketSeconds is the width of one time bucket: ~56s, matching the
// 4-char/base-36 prefix's ~3-year horizon (36^4 buckets).
const bucketSeconds = 56

// maxSeenEntries bounds the advisory recently-seen set; it is not a
// correctness mechanism (the recorder's insert is authoritative), just a
// cheap way to dodge same-bucket collisions before they hit the database.
const maxSeenEntries = 4096

// Generator produces compact IDs and remembers recently issued ones so it
// can detect same-bucket collisions before handing an ID to the recorder.
type Generator struct {
	mu   sync.Mutex
	seen map[string]struct{}
	// order is a FIFO ring of the keys in seen, used to evict the oldest
	// entry once the set grows past maxSeenEntries.
	order []string
}

// New creates a Generator with an empty recently-seen set.
func New() *Generator {
	return &Generator{
		seen: make(map[string]struct{}),
	}
}

// Generate returns a new compact ID for the given instant. The default
// shape is 7 characters (4-char time bucket + 3-char random); on a
// collision against the recently-seen set it retries up to 10 times,
// escalating to a 9-char variant (4-char time bucket + 5-char random)
// after the first few short attempts, and falls back to a UUID as a last
// resort. The ID is recorded as seen before being returned.
func (g *Generator) Generate(now time.Time) string {
	bucket := timeBucket(now)

	g.mu.Lock()
	defer g.mu.Unlock()

	const shortAttempts = 5
	const totalAttempts = 10

	for attempt := 0; attempt < totalAttempts; attempt++ {
		var id string
		if attempt < shortAttempts {
			id = bucket + randomSegment(3)
		} else {
			id = bucket + randomSegment(5)
		}

		if _, collided := g.seen[id]; !collided {
			g.remember(id)
			return id
		}
	}

	id := uuid.New().String()
	g.remember(id)
	return id
}

// remember records id as seen, evicting the oldest entry if the set is full.
// Caller must hold g.mu.
func (g *Generator) remember(id string) {
	if _, exists := g.seen[id]; exists {
		return
	}
	if len(g.order) >= maxSeenEntries {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.seen, oldest)
	}
	g.seen[id] = struct{}{}
	g.order = append(g.order, id)
}

// Seed primes the recently-seen set, used by tests to provoke collisions.
// Seeded ids share the maxSeenEntries cap, so seeding more than that keeps
// only the most recent ones.
func (g *Generator) Seed(ids ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		g.remember(id)
	}
}

// timeBucket returns the 4-char base-36 encoding of (t-epoch)/bucketSeconds.
func timeBucket(t time.Time) string {
	elapsed := int64(t.Sub(epoch).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	bucket := elapsed / bucketSeconds
	return encodeBase36(bucket, 4)
}

// BucketTime decodes the time bucket prefix of a 7- or 9-char compact ID
// back into the start of its time bucket. It returns ok=false for IDs that
// aren't in the compact (non-UUID) shape, e.g. the UUID fallback.
func BucketTime(id string) (t time.Time, ok bool) {
	if len(id) != 7 && len(id) != 9 {
		return time.Time{}, false
	}
	bucket, ok := decodeBase36(id[:4])
	if !ok {
		return time.Time{}, false
	}
	return epoch.Add(time.Duration(bucket*bucketSeconds) * time.Second), true
}

func encodeBase36(n int64, width int) string {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = alphabet[n%36]
		n /= 36
	}
	return string(buf)
}

func decodeBase36(s string) (int64, bool) {
	var n int64
	for _, c := range s {
		idx := indexOf(c)
		if idx < 0 {
			return 0, false
		}
		n = n*36 + int64(idx)
	}
	return n, true
}

func indexOf(c rune) int {
	for i, a := range alphabet {
		if a == c {
			return i
		}
	}
	return -1
}

func randomSegment(length int) string {
	buf := make([]byte, length)
	base := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, base)
		if err != nil {
			// crypto/rand failing is effectively unrecoverable entropy
			// starvation; fall back to the first alphabet character so the
			// ID shape stays valid rather than panicking mid-record.
			buf[i] = alphabet[0]
			continue
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf)
}
