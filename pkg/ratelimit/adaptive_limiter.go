// Package ratelimit implements an adaptive, latency-driven token bucket
// used to throttle sink dispatch so a slow downstream doesn't get hammered
// harder as it degrades.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"flowcore/pkg/event"
)

// AdaptiveRateLimiter is a token bucket whose rate self-adjusts against
// observed dispatch latency.
type AdaptiveRateLimiter struct {
	config Config
	logger *logrus.Logger

	currentRPS   float64
	currentBurst int
	tokens       float64
	lastRefill   time.Time
	latencyHistory *LatencyWindow

	stats Stats
	mutex sync.RWMutex

	adaptationCooldown time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// Config configures the adaptive rate limiter.
type Config struct {
	Enabled bool `yaml:"enabled"`

	InitialRPS float64 `yaml:"initial_rps"`
	MinRPS     float64 `yaml:"min_rps"`
	MaxRPS     float64 `yaml:"max_rps"`

	InitialBurst int `yaml:"initial_burst"`
	MinBurst     int `yaml:"min_burst"`
	MaxBurst     int `yaml:"max_burst"`

	LatencyTargetMS  int     `yaml:"latency_target_ms"`
	LatencyTolerance float64 `yaml:"latency_tolerance"`

	BytesPerToken int64 `yaml:"bytes_per_token"`

	AdaptationInterval time.Duration `yaml:"adaptation_interval"`
	LatencyWindowSize  int           `yaml:"latency_window_size"`
	AdaptationFactor   float64       `yaml:"adaptation_factor"`
	SmoothingFactor    float64       `yaml:"smoothing_factor"`
}

// Stats reports the limiter's running counters.
type Stats struct {
	TotalRequests    int64     `json:"total_requests"`
	AllowedRequests  int64     `json:"allowed_requests"`
	BlockedRequests  int64     `json:"blocked_requests"`
	BytesProcessed   int64     `json:"bytes_processed"`
	CurrentRPS       float64   `json:"current_rps"`
	CurrentBurst     int       `json:"current_burst"`
	AverageLatencyMS float64   `json:"average_latency_ms"`
	AdaptationCount  int64     `json:"adaptation_count"`
	LastAdaptation   time.Time `json:"last_adaptation"`
}

// LatencyWindow is a fixed-size ring buffer of recent latency samples.
type LatencyWindow struct {
	samples []time.Duration
	index   int
	size    int
	mutex   sync.Mutex
}

// NewLatencyWindow returns an empty window holding up to size samples.
func NewLatencyWindow(size int) *LatencyWindow {
	return &LatencyWindow{samples: make([]time.Duration, size), size: size}
}

// Add records a latency sample, overwriting the oldest once full.
func (lw *LatencyWindow) Add(latency time.Duration) {
	lw.mutex.Lock()
	defer lw.mutex.Unlock()
	lw.samples[lw.index] = latency
	lw.index = (lw.index + 1) % lw.size
}

// Average returns the mean of all non-zero samples currently held.
func (lw *LatencyWindow) Average() time.Duration {
	lw.mutex.Lock()
	defer lw.mutex.Unlock()

	var total time.Duration
	count := 0
	for _, sample := range lw.samples {
		if sample > 0 {
			total += sample
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / time.Duration(count)
}

// NewAdaptiveRateLimiter builds a limiter from config, applying sane
// defaults for any zero-valued field, and starts its adaptation loop.
func NewAdaptiveRateLimiter(config Config, logger *logrus.Logger) *AdaptiveRateLimiter {
	ctx, cancel := context.WithCancel(context.Background())

	if config.InitialRPS == 0 {
		config.InitialRPS = 10
	}
	if config.MinRPS == 0 {
		config.MinRPS = 1
	}
	if config.MaxRPS == 0 {
		config.MaxRPS = 1000
	}
	if config.InitialBurst == 0 {
		config.InitialBurst = int(config.InitialRPS * 2)
	}
	if config.MinBurst == 0 {
		config.MinBurst = 1
	}
	if config.MaxBurst == 0 {
		config.MaxBurst = int(config.MaxRPS * 2)
	}
	if config.LatencyTargetMS == 0 {
		config.LatencyTargetMS = 500
	}
	if config.LatencyTolerance == 0 {
		config.LatencyTolerance = 0.2
	}
	if config.BytesPerToken == 0 {
		config.BytesPerToken = 65536
	}
	if config.AdaptationInterval == 0 {
		config.AdaptationInterval = 30 * time.Second
	}
	if config.LatencyWindowSize == 0 {
		config.LatencyWindowSize = 100
	}
	if config.AdaptationFactor == 0 {
		config.AdaptationFactor = 0.1
	}
	if config.SmoothingFactor == 0 {
		config.SmoothingFactor = 0.8
	}

	rl := &AdaptiveRateLimiter{
		config:             config,
		logger:             logger,
		currentRPS:         config.InitialRPS,
		currentBurst:       config.InitialBurst,
		tokens:             float64(config.InitialBurst),
		lastRefill:         time.Now(),
		latencyHistory:     NewLatencyWindow(config.LatencyWindowSize),
		adaptationCooldown: config.AdaptationInterval,
		ctx:                ctx,
		cancel:             cancel,
	}

	go rl.adaptationLoop()
	return rl
}

// Allow reports whether a single unit of work may proceed now.
func (rl *AdaptiveRateLimiter) Allow() bool {
	if !rl.config.Enabled {
		return true
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.stats.TotalRequests++

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now

	tokensToAdd := elapsed * rl.currentRPS
	rl.tokens = math.Min(rl.tokens+tokensToAdd, float64(rl.currentBurst))

	if rl.tokens >= 1 {
		rl.tokens--
		rl.stats.AllowedRequests++
		return true
	}

	rl.stats.BlockedRequests++
	return false
}

// AllowN reports whether n units of work may proceed now.
func (rl *AdaptiveRateLimiter) AllowN(n int) bool {
	if !rl.config.Enabled {
		return true
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.stats.TotalRequests += int64(n)

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now

	tokensToAdd := elapsed * rl.currentRPS
	rl.tokens = math.Min(rl.tokens+tokensToAdd, float64(rl.currentBurst))

	if rl.tokens >= float64(n) {
		rl.tokens -= float64(n)
		rl.stats.AllowedRequests += int64(n)
		return true
	}

	rl.stats.BlockedRequests += int64(n)
	return false
}

// AllowBytes reports whether a payload of the given size may proceed now,
// converting bytes to tokens via BytesPerToken.
func (rl *AdaptiveRateLimiter) AllowBytes(bytes int64) bool {
	if !rl.config.Enabled || rl.config.BytesPerToken == 0 {
		return true
	}

	tokens := int(math.Ceil(float64(bytes) / float64(rl.config.BytesPerToken)))
	if rl.AllowN(tokens) {
		rl.mutex.Lock()
		rl.stats.BytesProcessed += bytes
		rl.mutex.Unlock()
		return true
	}
	return false
}

// AllowBatch reports whether a batch of events may proceed, accounting by
// estimated allocated byte size per SPEC_FULL.md's sink rate-limit model.
func (rl *AdaptiveRateLimiter) AllowBatch(batch []event.Event) bool {
	var total int64
	for i := range batch {
		total += int64(batch[i].AllocatedBytes())
	}
	return rl.AllowBytes(total)
}

// RecordLatency feeds an observed dispatch latency into the adaptation
// window.
func (rl *AdaptiveRateLimiter) RecordLatency(latency time.Duration) {
	if !rl.config.Enabled {
		return
	}
	rl.latencyHistory.Add(latency)
}

func (rl *AdaptiveRateLimiter) adaptationLoop() {
	ticker := time.NewTicker(rl.config.AdaptationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.ctx.Done():
			return
		case <-ticker.C:
			rl.performAdaptation()
		}
	}
}

func (rl *AdaptiveRateLimiter) performAdaptation() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	avgLatency := rl.latencyHistory.Average()
	if avgLatency == 0 {
		return
	}

	targetLatency := time.Duration(rl.config.LatencyTargetMS) * time.Millisecond
	toleranceThreshold := float64(targetLatency) * (1 + rl.config.LatencyTolerance)

	rl.logger.WithFields(logrus.Fields{
		"avg_latency_ms":    avgLatency.Milliseconds(),
		"target_latency_ms": targetLatency.Milliseconds(),
		"current_rps":       rl.currentRPS,
		"current_burst":     rl.currentBurst,
	}).Debug("performing rate limit adaptation")

	var adaptationNeeded bool
	var newRPS float64

	switch {
	case float64(avgLatency) > toleranceThreshold:
		newRPS = rl.currentRPS * (1 - rl.config.AdaptationFactor)
		adaptationNeeded = true
		rl.logger.WithFields(logrus.Fields{
			"reason":  "high_latency",
			"old_rps": rl.currentRPS,
			"new_rps": newRPS,
		}).Info("reducing rps due to high latency")
	case float64(avgLatency) < float64(targetLatency)*0.8:
		newRPS = rl.currentRPS * (1 + rl.config.AdaptationFactor)
		adaptationNeeded = true
		rl.logger.WithFields(logrus.Fields{
			"reason":  "low_latency",
			"old_rps": rl.currentRPS,
			"new_rps": newRPS,
		}).Info("increasing rps due to low latency")
	}

	if adaptationNeeded {
		newRPS = math.Max(newRPS, rl.config.MinRPS)
		newRPS = math.Min(newRPS, rl.config.MaxRPS)

		burstRatio := float64(rl.currentBurst) / rl.currentRPS
		newBurst := int(newRPS * burstRatio)
		newBurst = int(math.Max(float64(newBurst), float64(rl.config.MinBurst)))
		newBurst = int(math.Min(float64(newBurst), float64(rl.config.MaxBurst)))

		if rl.stats.AdaptationCount > 0 {
			newRPS = rl.currentRPS*rl.config.SmoothingFactor + newRPS*(1-rl.config.SmoothingFactor)
		}

		rl.currentRPS = newRPS
		rl.currentBurst = newBurst
		rl.stats.AdaptationCount++
		rl.stats.LastAdaptation = time.Now()
	}

	rl.stats.CurrentRPS = rl.currentRPS
	rl.stats.CurrentBurst = rl.currentBurst
	rl.stats.AverageLatencyMS = float64(avgLatency.Milliseconds())
}

// Wait blocks until a token is available or ctx is done.
func (rl *AdaptiveRateLimiter) Wait(ctx context.Context) error {
	if !rl.config.Enabled {
		return nil
	}
	for {
		if rl.Allow() {
			return nil
		}
		rl.mutex.RLock()
		waitTime := time.Duration(1000/rl.currentRPS) * time.Millisecond
		rl.mutex.RUnlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			continue
		}
	}
}

// GetCurrentLimits returns the currently effective rate and burst size.
func (rl *AdaptiveRateLimiter) GetCurrentLimits() (rps float64, burst int) {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()
	return rl.currentRPS, rl.currentBurst
}

// GetStats returns a snapshot of the limiter's counters.
func (rl *AdaptiveRateLimiter) GetStats() Stats {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	stats := rl.stats
	stats.CurrentRPS = rl.currentRPS
	stats.CurrentBurst = rl.currentBurst
	stats.AverageLatencyMS = float64(rl.latencyHistory.Average().Milliseconds())
	return stats
}

// Reset restores the limiter to its initial configuration.
func (rl *AdaptiveRateLimiter) Reset() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.currentRPS = rl.config.InitialRPS
	rl.currentBurst = rl.config.InitialBurst
	rl.tokens = float64(rl.config.InitialBurst)
	rl.lastRefill = time.Now()
	rl.stats = Stats{}
	rl.latencyHistory = NewLatencyWindow(rl.config.LatencyWindowSize)
}

// Stop terminates the adaptation loop.
func (rl *AdaptiveRateLimiter) Stop() {
	rl.cancel()
}
