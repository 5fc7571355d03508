// Package telemetry is the constellation's health instrumentation: per-role
// operation ingest, a composite 0-100 health score, threshold and anomaly
// alerts, and a fixed-interval background sampler that fills bounded ring
// buffers the analysis functions read.
//
// The Collector is dependency-injected, never a package global. It is the
// only writer of its own buffers; everything exported for reading returns
// copies.
package telemetry

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"aeon/internal/config"
	"aeon/internal/logging"
	"aeon/internal/types"
)

// Metric names one observable the collector tracks per role.
type Metric string

const (
	MetricLatency   Metric = "latency"
	MetricErrorRate Metric = "error_rate"
	MetricHealth    Metric = "health"
	MetricResource  Metric = "resource"
)

// Severity is an alert severity.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one threshold or anomaly violation.
type Alert struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Role      types.AgentRole `json:"role"`
	Metric    Metric          `json:"metric"`
	Severity  Severity        `json:"severity"`
	Value     float64         `json:"value"`
	Threshold float64         `json:"threshold"`
	Message   string          `json:"message"`
}

// Sample is one telemetry snapshot for one role at one sampler tick.
type Sample struct {
	Timestamp   time.Time       `json:"timestamp"`
	Role        types.AgentRole `json:"role"`
	LatencyMs   float64         `json:"latency_ms"`
	ErrorRate   float64         `json:"error_rate"`
	Entropy     float64         `json:"entropy"`
	QueueDepth  int             `json:"queue_depth"`
	SuccessRate float64         `json:"success_rate"`
	AvgQuality  float64         `json:"avg_quality"`
	Health      float64         `json:"health"`
	Tier        types.Tier      `json:"tier"`
}

// Health score component weights. All inputs are normalized to 0-100 before
// weighting and the blended score is clamped to [0,100].
const (
	weightInvLatency = 0.20
	weightInvError   = 0.30
	weightInvEntropy = 0.10
	weightSuccess    = 0.25
	weightQuality    = 0.15
)

// outcomeWindow bounds the recent success/failure window used for the
// output-entropy estimate.
const outcomeWindow = 32

// agentStats is the mutable per-role accumulator. Owned by the Collector,
// guarded by its mutex.
type agentStats struct {
	emaLatencyMs float64
	emaErrorRate float64
	seeded       bool

	successes int
	total     int
	qualitySum float64

	recentOutcomes []bool // success flags, bounded at outcomeWindow

	queueDepth    int
	resourceUsage float64
	tier          types.Tier
	health        float64

	// Ring buffer of sampler snapshots, ordered by append time.
	samples []Sample
	head    int
	count   int
}

// Collector ingests per-operation outcomes and maintains per-role health.
type Collector struct {
	mu    sync.RWMutex
	cfg   config.TelemetryConfig
	stats map[types.AgentRole]*agentStats

	alerts      []Alert
	subscribers []chan<- Alert

	interval time.Duration
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCollector builds a collector for the full roster. Agents start at a
// neutral health of 50 until their first recorded operation.
func NewCollector(cfg config.TelemetryConfig) *Collector {
	c := &Collector{
		cfg:      cfg,
		stats:    make(map[types.AgentRole]*agentStats, 10),
		interval: config.ParseDuration(cfg.SampleInterval, 50*time.Millisecond),
	}
	for _, role := range types.AllRoles() {
		c.stats[role] = &agentStats{
			health:  50,
			tier:    types.TierPrimary,
			samples: make([]Sample, cfg.HistorySize),
		}
	}
	return c
}

// RecordOperation ingests one completed operation for a role: smooths latency
// and error rate, recomputes the composite health score, and evaluates the
// fixed alert thresholds.
func (c *Collector) RecordOperation(role types.AgentRole, success bool, latencyMs float64, quality float64) {
	c.mu.Lock()
	s, ok := c.stats[role]
	if !ok {
		c.mu.Unlock()
		logging.Telemetry("RecordOperation for unknown role %s dropped", role)
		return
	}

	alpha := c.cfg.SmoothingAlpha
	errVal := 1.0
	if success {
		errVal = 0.0
	}
	if !s.seeded {
		s.emaLatencyMs = latencyMs
		s.emaErrorRate = errVal
		s.seeded = true
	} else {
		s.emaLatencyMs = alpha*latencyMs + (1-alpha)*s.emaLatencyMs
		s.emaErrorRate = alpha*errVal + (1-alpha)*s.emaErrorRate
	}

	s.total++
	if success {
		s.successes++
	}
	s.qualitySum += quality

	s.recentOutcomes = append(s.recentOutcomes, success)
	if len(s.recentOutcomes) > outcomeWindow {
		s.recentOutcomes = s.recentOutcomes[1:]
	}

	s.health = c.computeHealth(s)
	alerts := c.evaluateThresholds(role, s)
	c.mu.Unlock()

	for _, a := range alerts {
		c.publish(a)
	}

	logging.TelemetryDebug("%s op: success=%t latency=%.0fms quality=%.0f health=%.1f",
		role, success, latencyMs, quality, c.Health(role))
}

// computeHealth blends the five normalized components. Caller holds the lock.
func (c *Collector) computeHealth(s *agentStats) float64 {
	// Latency normalizes against the critical threshold: at or above it the
	// component bottoms out at zero.
	ceiling := c.cfg.LatencyCritMs
	if ceiling <= 0 {
		ceiling = 8000
	}
	invLatency := 100 * (1 - s.emaLatencyMs/ceiling)
	invError := 100 * (1 - s.emaErrorRate)
	invEntropy := 100 * (1 - outcomeEntropy(s.recentOutcomes))

	successRate := 1.0
	avgQuality := 50.0
	if s.total > 0 {
		successRate = float64(s.successes) / float64(s.total)
		avgQuality = s.qualitySum / float64(s.total)
	}

	score := weightInvLatency*clamp(invLatency, 0, 100) +
		weightInvError*clamp(invError, 0, 100) +
		weightInvEntropy*clamp(invEntropy, 0, 100) +
		weightSuccess*clamp(100*successRate, 0, 100) +
		weightQuality*clamp(avgQuality, 0, 100)
	return clamp(score, 0, 100)
}

// outcomeEntropy is the Shannon entropy of the recent success/failure window,
// normalized to [0,1]. A steady agent (all success or all failure) scores 0;
// a coin-flip agent scores 1.
func outcomeEntropy(outcomes []bool) float64 {
	if len(outcomes) < 2 {
		return 0
	}
	var wins int
	for _, ok := range outcomes {
		if ok {
			wins++
		}
	}
	p := float64(wins) / float64(len(outcomes))
	if p == 0 || p == 1 {
		return 0
	}
	return -(p*math.Log2(p) + (1-p)*math.Log2(1-p))
}

// evaluateThresholds checks each metric against its warning and critical
// thresholds independently. Caller holds the lock; returned alerts are
// published after release.
func (c *Collector) evaluateThresholds(role types.AgentRole, s *agentStats) []Alert {
	var out []Alert
	check := func(metric Metric, value, warn, crit float64, higherIsWorse bool) {
		breached := func(limit float64) bool {
			if higherIsWorse {
				return value >= limit
			}
			return value <= limit
		}
		switch {
		case breached(crit):
			out = append(out, c.newAlert(role, metric, SeverityCritical, value, crit))
		case breached(warn):
			out = append(out, c.newAlert(role, metric, SeverityWarning, value, warn))
		}
	}

	check(MetricLatency, s.emaLatencyMs, c.cfg.LatencyWarnMs, c.cfg.LatencyCritMs, true)
	check(MetricErrorRate, s.emaErrorRate, c.cfg.ErrorRateWarn, c.cfg.ErrorRateCrit, true)
	check(MetricHealth, s.health, c.cfg.HealthWarn, c.cfg.HealthCrit, false)
	check(MetricResource, s.resourceUsage, c.cfg.ResourceWarn, c.cfg.ResourceCrit, true)

	for _, a := range out {
		c.alerts = append(c.alerts, a)
	}
	if limit := c.cfg.AlertHistorySize; limit > 0 && len(c.alerts) > limit {
		c.alerts = c.alerts[len(c.alerts)-limit:]
	}
	return out
}

func (c *Collector) newAlert(role types.AgentRole, metric Metric, sev Severity, value, threshold float64) Alert {
	return Alert{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Role:      role,
		Metric:    metric,
		Severity:  sev,
		Value:     value,
		Threshold: threshold,
		Message:   string(sev) + ": " + string(metric) + " threshold breached for " + string(role),
	}
}

// publish pushes an alert to subscribers without blocking. Slow subscribers
// miss alerts rather than stalling ingest.
func (c *Collector) publish(a Alert) {
	logging.Telemetry("ALERT %s %s %s value=%.2f threshold=%.2f", a.Severity, a.Role, a.Metric, a.Value, a.Threshold)
	c.mu.RLock()
	subs := append([]chan<- Alert(nil), c.subscribers...)
	c.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- a:
		default:
		}
	}
}

// Subscribe registers a channel for alert delivery. Sends are non-blocking.
func (c *Collector) Subscribe(ch chan<- Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, ch)
}

// Alerts returns a copy of the bounded alert history.
func (c *Collector) Alerts() []Alert {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Alert(nil), c.alerts...)
}

// Health returns the current composite health score for a role.
func (c *Collector) Health(role types.AgentRole) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.stats[role]; ok {
		return s.health
	}
	return 0
}

// ErrorRate returns the smoothed error rate for a role.
func (c *Collector) ErrorRate(role types.AgentRole) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.stats[role]; ok {
		return s.emaErrorRate
	}
	return 0
}

// Latency returns the smoothed latency for a role in milliseconds.
func (c *Collector) Latency(role types.AgentRole) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.stats[role]; ok {
		return s.emaLatencyMs
	}
	return 0
}

// SetTier records the role's current failover tier for sampling.
func (c *Collector) SetTier(role types.AgentRole, tier types.Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.stats[role]; ok {
		s.tier = tier
	}
}

// SetQueueDepth records the role's pending-task count for sampling.
func (c *Collector) SetQueueDepth(role types.AgentRole, depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.stats[role]; ok {
		s.queueDepth = depth
	}
}

// SetResourceUsage records a 0-1 resource-pressure gauge for a role.
func (c *Collector) SetResourceUsage(role types.AgentRole, frac float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.stats[role]; ok {
		s.resourceUsage = clamp(frac, 0, 1)
	}
}

// QueueDepth returns the role's last recorded pending-task count.
func (c *Collector) QueueDepth(role types.AgentRole) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.stats[role]; ok {
		return s.queueDepth
	}
	return 0
}

// Samples returns the role's ring buffer contents in append order.
func (c *Collector) Samples(role types.AgentRole) []Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stats[role]
	if !ok {
		return nil
	}
	return ringContents(s)
}

// ringContents unrolls the ring buffer oldest-first. Caller holds the lock.
func ringContents(s *agentStats) []Sample {
	n := s.count
	if n > len(s.samples) {
		n = len(s.samples)
	}
	out := make([]Sample, 0, n)
	start := 0
	if s.count > len(s.samples) {
		start = s.head
	}
	for i := 0; i < n; i++ {
		out = append(out, s.samples[(start+i)%len(s.samples)])
	}
	return out
}

// Start launches the background sampler. Each tick appends one snapshot per
// role to that role's ring buffer. Idempotent while running.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	logging.Telemetry("Sampler started (interval=%s, history=%d)", c.interval, c.cfg.HistorySize)
	go c.sampleLoop(ctx)
}

func (c *Collector) sampleLoop(ctx context.Context) {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sampleAll()
		}
	}
}

// sampleAll appends one snapshot per role.
func (c *Collector) sampleAll() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for role, s := range c.stats {
		successRate := 1.0
		avgQuality := 50.0
		if s.total > 0 {
			successRate = float64(s.successes) / float64(s.total)
			avgQuality = s.qualitySum / float64(s.total)
		}
		sample := Sample{
			Timestamp:   now,
			Role:        role,
			LatencyMs:   s.emaLatencyMs,
			ErrorRate:   s.emaErrorRate,
			Entropy:     outcomeEntropy(s.recentOutcomes),
			QueueDepth:  s.queueDepth,
			SuccessRate: successRate,
			AvgQuality:  avgQuality,
			Health:      s.health,
			Tier:        s.tier,
		}
		if len(s.samples) == 0 {
			continue
		}
		s.samples[s.head] = sample
		s.head = (s.head + 1) % len(s.samples)
		s.count++
	}
}

// Stop halts the sampler and waits for the loop to exit. Safe to call twice.
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stopCh, doneCh := c.stopCh, c.doneCh
	c.mu.Unlock()

	close(stopCh)
	<-doneCh
	logging.Telemetry("Sampler stopped")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
