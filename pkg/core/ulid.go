package core

import (
	"errors"
	"fmt"
	mathrand "math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// DefaultIDPrefix is prepended to every generated event id.
const DefaultIDPrefix = "evt_"

// ErrUnknownIDStrategy is returned for an unsupported generator name.
var ErrUnknownIDStrategy = errors.New("unknown id strategy")

// IDGenerator hands out opaque node ids. Implementations must be safe for
// concurrent use.
type IDGenerator interface {
	NewID() string
}

// ULIDGenerator generates monotonic ULIDs.
type ULIDGenerator struct {
	prefix  string
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULIDGenerator returns a generator seeded from the current time.
func NewULIDGenerator(prefix string) *ULIDGenerator {
	return &ULIDGenerator{
		prefix:  prefix,
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
	}
}

// NewID generates a ULID string for new nodes.
func (g *ULIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prefix + ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// UUIDGenerator generates random v4 UUIDs.
type UUIDGenerator struct {
	prefix string
}

// NewUUIDGenerator returns a UUID based generator.
func NewUUIDGenerator(prefix string) *UUIDGenerator {
	return &UUIDGenerator{prefix: prefix}
}

// NewID returns a fresh UUID string.
func (g *UUIDGenerator) NewID() string {
	return g.prefix + uuid.NewString()
}

// Counter is a deterministic generator yielding prefix1, prefix2, ...
type Counter struct {
	prefix string
	n      atomic.Uint64
}

// NewCounter returns a counter starting at 1.
func NewCounter(prefix string) *Counter {
	return &Counter{prefix: prefix}
}

// NewID returns the next id.
func (c *Counter) NewID() string {
	return c.prefix + strconv.FormatUint(c.n.Add(1), 10)
}

// NewIDGenerator builds a generator from its configuration name.
func NewIDGenerator(strategy, prefix string) (IDGenerator, error) {
	switch strategy {
	case "", "ulid":
		return NewULIDGenerator(prefix), nil
	case "uuid":
		return NewUUIDGenerator(prefix), nil
	case "counter":
		return NewCounter(prefix), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIDStrategy, strategy)
	}
}
