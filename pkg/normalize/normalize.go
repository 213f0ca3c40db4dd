// Package normalize implements the metric normalizer and cardinality
// limiter described in SPEC_FULL.md §4.5.
//
// Grounded on the teacher's pkg/deduplication (fingerprint set with bounded
// size and eviction sweep), generalized from "drop duplicate log lines" to
// "reconcile incremental/absolute metric samples" and "cap distinct tag
// values per series."
package normalize

import (
	"container/list"
	"sync"
	"time"

	"flowcore/pkg/event"
)

// entry is one MetricSet slot: the last absolute value observed for a
// series plus its last-update time, kept in an LRU list for eviction.
type entry struct {
	key     event.SeriesKey
	value   *event.Metric
	updated time.Time
	elem    *list.Element
}

// Bounds configures the normalizer's eviction limits.
type Bounds struct {
	MaxEvents int
	MaxBytes  int
	TTL       time.Duration
}

// MetricSet is an ordered map from series key to the last absolute value
// observed, evicting least-recently-updated entries when a bound is hit.
type MetricSet struct {
	mu      sync.Mutex
	bounds  Bounds
	entries map[event.SeriesKey]*entry
	lru     *list.List
	bytes   int
}

// NewMetricSet returns an empty set governed by bounds.
func NewMetricSet(bounds Bounds) *MetricSet {
	return &MetricSet{
		bounds:  bounds,
		entries: make(map[event.SeriesKey]*entry),
		lru:     list.New(),
	}
}

func (s *MetricSet) touch(e *entry) {
	s.lru.MoveToFront(e.elem)
	e.updated = time.Now()
}

func (s *MetricSet) evictExpiredLocked() {
	if s.bounds.TTL <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.bounds.TTL)
	for {
		back := s.lru.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		if e.updated.After(cutoff) {
			return
		}
		s.removeLocked(e)
	}
}

func (s *MetricSet) evictOverboundLocked() {
	for s.bounds.MaxEvents > 0 && len(s.entries) > s.bounds.MaxEvents {
		back := s.lru.Back()
		if back == nil {
			return
		}
		s.removeLocked(back.Value.(*entry))
	}
	for s.bounds.MaxBytes > 0 && s.bytes > s.bounds.MaxBytes {
		back := s.lru.Back()
		if back == nil {
			return
		}
		s.removeLocked(back.Value.(*entry))
	}
}

func (s *MetricSet) removeLocked(e *entry) {
	s.lru.Remove(e.elem)
	delete(s.entries, e.key)
	s.bytes -= e.value.AllocatedBytes()
}

func (s *MetricSet) get(key event.SeriesKey) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked()
	e, ok := s.entries[key]
	return e, ok
}

func (s *MetricSet) put(key event.SeriesKey, m *event.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.bytes -= e.value.AllocatedBytes()
		e.value = m
		s.bytes += m.AllocatedBytes()
		s.touch(e)
	} else {
		elem := s.lru.PushFront(nil)
		e := &entry{key: key, value: m, updated: time.Now(), elem: elem}
		elem.Value = e
		s.entries[key] = e
		s.bytes += m.AllocatedBytes()
	}
	s.evictOverboundLocked()
}

// Normalizer reconciles incoming metric samples of mixed kind against a
// MetricSet, implementing make_absolute/make_incremental per §4.5.2.
type Normalizer struct {
	set *MetricSet
}

// NewNormalizer returns a normalizer backed by a fresh MetricSet governed by
// bounds.
func NewNormalizer(bounds Bounds) *Normalizer {
	return &Normalizer{set: NewMetricSet(bounds)}
}

// MakeAbsolute converts m to an absolute-kind sample, reconciling against
// any prior incremental accumulation for its series.
func (n *Normalizer) MakeAbsolute(m *event.Metric) *event.Metric {
	key := m.Key()
	if m.Kind == event.Absolute {
		cp := *m
		n.set.put(key, &cp)
		return m
	}

	e, ok := n.set.get(key)
	if !ok {
		abs := *m
		abs.Kind = event.Absolute
		n.set.put(key, &abs)
		out := abs
		return &out
	}

	stored := *e.value
	if err := stored.Add(m); err != nil {
		// Incompatible kinds: treat as a fresh baseline rather than failing
		// the whole pipeline.
		abs := *m
		abs.Kind = event.Absolute
		n.set.put(key, &abs)
		out := abs
		return &out
	}
	stored.Kind = event.Absolute
	n.set.put(key, &stored)
	out := stored
	return &out
}

// MakeIncremental converts m to an incremental-kind delta against the
// MetricSet's stored absolute value. Returns nil when this is the first
// absolute sample for a counter/other variant (no baseline to diff against
// yet) — except gauges, which always emit, per the spec's edge case for a
// zero-delta first sample.
func (n *Normalizer) MakeIncremental(m *event.Metric) *event.Metric {
	if m.Kind == event.Incremental {
		return m
	}

	key := m.Key()
	e, ok := n.set.get(key)
	if !ok {
		n.set.put(key, cloneMetric(m))
		if m.Value.Kind == event.MVGauge {
			zero := *m
			zero.Kind = event.Incremental
			zero.Value.Gauge = 0
			return &zero
		}
		return nil
	}

	delta, ok := m.Subtract(e.value)
	if !ok {
		// Reset: store the new value as the baseline and emit it directly
		// as the incremental value, per the spec's reset semantics.
		n.set.put(key, cloneMetric(m))
		out := *m
		out.Kind = event.Incremental
		return &out
	}
	n.set.put(key, cloneMetric(m))
	delta.Kind = event.Incremental
	return delta
}

func cloneMetric(m *event.Metric) *event.Metric {
	cp := *m
	cp.Tags = append([]event.TagPair(nil), m.Tags...)
	return &cp
}
