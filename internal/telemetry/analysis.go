package telemetry

import (
	"math"
	"time"

	"aeon/internal/types"
)

// TrendDirection classifies a metric's recent movement.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendDegrading TrendDirection = "degrading"
)

// HealthPrediction is a linear extrapolation of a role's health score.
type HealthPrediction struct {
	Role            types.AgentRole `json:"role"`
	CurrentHealth   float64         `json:"current_health"`
	PredictedHealth float64         `json:"predicted_health"`
	Horizon         time.Duration   `json:"horizon"`
	Declining       bool            `json:"declining"`
	Confidence      float64         `json:"confidence"` // R-squared of the fit, [0,1]
}

// minDynamicSamples is the point below which DynamicThreshold falls back to
// the static critical threshold; a mean over fewer samples is noise.
const minDynamicSamples = 10

// DynamicThreshold computes mean + sigma*stddev of a metric over the role's
// recent samples, for anomaly detection distinct from the fixed thresholds.
// Below minDynamicSamples it returns the static default for the metric.
func (c *Collector) DynamicThreshold(role types.AgentRole, metric Metric, sigma float64) float64 {
	samples := c.Samples(role)
	if len(samples) < minDynamicSamples {
		return c.staticDefault(metric)
	}

	values := metricSeries(samples, metric)
	mean, stddev := meanStddev(values)
	return mean + sigma*stddev
}

func (c *Collector) staticDefault(metric Metric) float64 {
	switch metric {
	case MetricLatency:
		return c.cfg.LatencyCritMs
	case MetricErrorRate:
		return c.cfg.ErrorRateCrit
	case MetricHealth:
		return c.cfg.HealthCrit
	case MetricResource:
		return c.cfg.ResourceCrit
	}
	return 0
}

// Trend fits a line through the last window samples of a metric and
// classifies the slope. A dead band around zero absorbs flapping. The slope
// sign is interpreted per metric polarity: rising health improves, rising
// latency/error/resource degrades.
func (c *Collector) Trend(role types.AgentRole, metric Metric, window int) TrendDirection {
	samples := c.Samples(role)
	if window > 0 && len(samples) > window {
		samples = samples[len(samples)-window:]
	}
	if len(samples) < 3 {
		return TrendStable
	}

	values := metricSeries(samples, metric)
	slope, _, _ := linearFit(values)

	// The dead band is relative to the series mean so it scales with the
	// metric's magnitude.
	mean, _ := meanStddev(values)
	band := c.cfg.TrendDeadBand * math.Max(math.Abs(mean), 1)
	if math.Abs(slope*float64(len(values))) < band {
		return TrendStable
	}

	risingIsGood := metric == MetricHealth
	if (slope > 0) == risingIsGood {
		return TrendImproving
	}
	return TrendDegrading
}

// PredictHealthDecline extrapolates the role's health regression to a future
// horizon. Confidence is the R-squared of the fit; with too few samples the
// prediction is the current health at zero confidence.
func (c *Collector) PredictHealthDecline(role types.AgentRole, horizon time.Duration) HealthPrediction {
	current := c.Health(role)
	pred := HealthPrediction{
		Role:            role,
		CurrentHealth:   current,
		PredictedHealth: current,
		Horizon:         horizon,
	}

	samples := c.Samples(role)
	if len(samples) < 3 {
		return pred
	}

	values := metricSeries(samples, MetricHealth)
	slope, intercept, r2 := linearFit(values)

	// Index units are sampler ticks; convert the horizon to ticks.
	span := samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)
	if span <= 0 {
		return pred
	}
	tick := span / time.Duration(len(samples)-1)
	future := float64(len(values)-1) + float64(horizon)/float64(tick)

	pred.PredictedHealth = clamp(slope*future+intercept, 0, 100)
	pred.Declining = pred.PredictedHealth < current
	pred.Confidence = clamp(r2, 0, 1)
	return pred
}

func metricSeries(samples []Sample, metric Metric) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		switch metric {
		case MetricLatency:
			out[i] = s.LatencyMs
		case MetricErrorRate:
			out[i] = s.ErrorRate
		case MetricHealth:
			out[i] = s.Health
		case MetricResource:
			out[i] = float64(s.QueueDepth)
		}
	}
	return out
}

func meanStddev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// linearFit is an ordinary least-squares fit of values against their index,
// returning slope, intercept, and R-squared.
func linearFit(values []float64) (slope, intercept, r2 float64) {
	n := float64(len(values))
	if n < 2 {
		if n == 1 {
			return 0, values[0], 0
		}
		return 0, 0, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssTot, ssRes float64
	for i, y := range values {
		fit := slope*float64(i) + intercept
		ssTot += (y - meanY) * (y - meanY)
		ssRes += (y - fit) * (y - fit)
	}
	if ssTot == 0 {
		// A perfectly flat series is a perfect fit.
		return slope, intercept, 1
	}
	return slope, intercept, 1 - ssRes/ssTot
}
