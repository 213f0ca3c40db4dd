package event

import "testing"

func TestMetricAddCounter(t *testing.T) {
	a := &Metric{Name: "requests", Kind: Incremental, Value: MetricValue{Kind: MVCounter, Counter: 3}}
	b := &Metric{Name: "requests", Kind: Incremental, Value: MetricValue{Kind: MVCounter, Counter: 4}}
	if err := a.Add(b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Value.Counter != 7 {
		t.Errorf("expected 7, got %v", a.Value.Counter)
	}
}

func TestMetricAddIncompatibleKind(t *testing.T) {
	a := &Metric{Value: MetricValue{Kind: MVCounter}}
	b := &Metric{Value: MetricValue{Kind: MVGauge}}
	if err := a.Add(b); err == nil {
		t.Fatal("expected incompatible kind error")
	}
}

func TestMetricSubtractCounterReset(t *testing.T) {
	newer := &Metric{Value: MetricValue{Kind: MVCounter, Counter: 2}}
	older := &Metric{Value: MetricValue{Kind: MVCounter, Counter: 10}}
	if _, ok := newer.Subtract(older); ok {
		t.Fatal("expected subtraction to be undefined on counter reset")
	}
}

func TestMetricSubtractDistributionUndefined(t *testing.T) {
	a := &Metric{Value: MetricValue{Kind: MVDistribution}}
	b := &Metric{Value: MetricValue{Kind: MVDistribution}}
	if _, ok := a.Subtract(b); ok {
		t.Fatal("distribution subtraction should always be undefined")
	}
}

func TestMetricKeyCanonicalizesTagOrder(t *testing.T) {
	a := &Metric{Name: "n", Tags: []TagPair{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}}}
	b := &Metric{Name: "n", Tags: []TagPair{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}}
	if a.Key() != b.Key() {
		t.Errorf("expected equal series keys, got %+v vs %+v", a.Key(), b.Key())
	}
}

func TestMetricAddHistogramBucketMismatch(t *testing.T) {
	a := &Metric{Value: MetricValue{Kind: MVAggregatedHistogram, Buckets: []Bucket{{Upper: 1, Count: 1}}}}
	b := &Metric{Value: MetricValue{Kind: MVAggregatedHistogram, Buckets: []Bucket{{Upper: 2, Count: 1}}}}
	if err := a.Add(b); err == nil {
		t.Fatal("expected error on mismatched bucket boundaries")
	}
}
