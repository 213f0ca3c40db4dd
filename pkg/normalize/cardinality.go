package normalize

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"flowcore/pkg/event"
)

// LimitAction controls what CardinalityLimiter does once a tag value limit
// is reached for a series.
type LimitAction int

const (
	// DropEvent discards the whole metric event.
	DropEvent LimitAction = iota
	// DropTag removes only the offending tag and passes the event through.
	DropTag
)

// CardinalityMode selects the accounting strategy: Exact keeps a real set of
// observed values per tag key; Probabilistic keeps a fixed-size counting
// bloom filter, trading a small false-positive rate for bounded memory.
type CardinalityMode int

const (
	Exact CardinalityMode = iota
	Probabilistic
)

// CardinalityConfig configures a CardinalityLimiter.
type CardinalityConfig struct {
	Mode        CardinalityMode
	MaxValues   int
	Action      LimitAction
	BloomBits   uint64 // probabilistic mode only, rounded up to a power of two
	BloomHashes int    // probabilistic mode only
}

type seriesLimits struct {
	exact map[string]map[string]struct{} // tag key -> observed values
	bloom map[string]*countingBloom      // tag key -> filter
}

// CardinalityLimiter caps the number of distinct tag values observed per
// metric-name+tag-key pair, emitting a one-time telemetry callback when a
// series first hits its limit.
//
// Grounded on the teacher's pkg/deduplication fingerprint-set design,
// generalized from "have we seen this log line" to "have we seen this tag
// value," with the Probabilistic mode additionally grounded on the xxhash
// dependency the broader example corpus uses for fast non-cryptographic
// hashing.
type CardinalityLimiter struct {
	mu     sync.Mutex
	cfg    CardinalityConfig
	series map[string]*seriesLimits // metric series key -> per-tag limits
	onHit  func(seriesKey, tagKey string)
}

// NewCardinalityLimiter returns a limiter governed by cfg. onHit, if
// non-nil, is invoked exactly once per (series, tag key) the first time its
// value set reaches MaxValues.
func NewCardinalityLimiter(cfg CardinalityConfig, onHit func(seriesKey, tagKey string)) *CardinalityLimiter {
	if cfg.MaxValues <= 0 {
		cfg.MaxValues = 1000
	}
	if cfg.BloomBits == 0 {
		cfg.BloomBits = 1 << 16
	}
	if cfg.BloomHashes == 0 {
		cfg.BloomHashes = 4
	}
	return &CardinalityLimiter{cfg: cfg, series: make(map[string]*seriesLimits), onHit: onHit}
}

// Apply enforces the cardinality bound against m's tags, mutating m in
// place under DropTag and returning keep=false under DropEvent.
func (c *CardinalityLimiter) Apply(m *event.Metric) (keep bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seriesName := m.Namespace + "." + m.Name
	sl, ok := c.series[seriesName]
	if !ok {
		sl = &seriesLimits{exact: make(map[string]map[string]struct{}), bloom: make(map[string]*countingBloom)}
		c.series[seriesName] = sl
	}

	var drop []int
	for i, t := range m.Tags {
		var atLimit, isNew bool
		switch c.cfg.Mode {
		case Probabilistic:
			bf, ok := sl.bloom[t.Key]
			if !ok {
				bf = newCountingBloom(c.cfg.BloomBits, c.cfg.BloomHashes)
				sl.bloom[t.Key] = bf
			}
			isNew = !bf.test(t.Value)
			if isNew {
				if bf.count >= c.cfg.MaxValues {
					atLimit = true
				} else {
					bf.add(t.Value)
				}
			}
		default: // Exact
			vals, ok := sl.exact[t.Key]
			if !ok {
				vals = make(map[string]struct{})
				sl.exact[t.Key] = vals
			}
			_, seen := vals[t.Value]
			isNew = !seen
			if isNew {
				if len(vals) >= c.cfg.MaxValues {
					atLimit = true
				} else {
					vals[t.Value] = struct{}{}
				}
			}
		}

		if isNew && atLimit {
			if c.onHit != nil {
				c.onHit(seriesName, t.Key)
			}
			if c.cfg.Action == DropEvent {
				return false
			}
			drop = append(drop, i)
		}
	}

	if len(drop) > 0 {
		kept := m.Tags[:0]
		dropSet := make(map[int]struct{}, len(drop))
		for _, i := range drop {
			dropSet[i] = struct{}{}
		}
		for i, t := range m.Tags {
			if _, d := dropSet[i]; !d {
				kept = append(kept, t)
			}
		}
		m.Tags = kept
	}
	return true
}

// countingBloom is a fixed-size counting bloom filter used by Probabilistic
// mode to approximate set membership in bounded memory.
type countingBloom struct {
	counters []uint8
	hashes   int
	bits     uint64
	count    int
}

func newCountingBloom(bits uint64, hashes int) *countingBloom {
	n := uint64(1)
	for n < bits {
		n <<= 1
	}
	return &countingBloom{counters: make([]uint8, n), hashes: hashes, bits: n}
}

func (b *countingBloom) positions(v string) []uint64 {
	h1 := xxhash.Sum64String(v)
	h2 := xxhash.Sum64String(v + "\x00salt")
	pos := make([]uint64, b.hashes)
	for i := 0; i < b.hashes; i++ {
		pos[i] = (h1 + uint64(i)*h2) & (b.bits - 1)
	}
	return pos
}

func (b *countingBloom) test(v string) bool {
	for _, p := range b.positions(v) {
		if b.counters[p] == 0 {
			return false
		}
	}
	return true
}

func (b *countingBloom) add(v string) {
	b.count++
	for _, p := range b.positions(v) {
		if b.counters[p] < 255 {
			b.counters[p]++
		}
	}
}
