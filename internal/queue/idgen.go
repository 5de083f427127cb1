package queue

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator generates unique IDs for jobs.
// Interface allows mocking in tests.
type IDGenerator interface {
	Generate() string
}

// ULIDGenerator generates ULIDs. Time-ordered ids matter here: the claim
// query orders by creation time, so ids that sort by enqueue time keep the
// queue's best-effort FIFO property cheap to maintain.
type ULIDGenerator struct {
	entropy *ulid.MonotonicEntropy
}

// NewULIDGenerator creates a ULID generator with monotonic entropy, so ids
// generated in the same millisecond still sort in generation order.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID string.
func (g *ULIDGenerator) Generate() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}
