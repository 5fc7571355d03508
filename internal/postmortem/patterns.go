package postmortem

import (
	"regexp"
	"sort"
	"time"
)

// FailurePattern is one recurring failure signature. Confidence grows by a
// fixed increment each recurrence and is capped below 1.0.
type FailurePattern struct {
	Name        string    `json:"name"`
	Occurrences int       `json:"occurrences"`
	Confidence  float64   `json:"confidence"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

const (
	patternBaseConfidence = 0.3
	patternIncrement      = 0.1
	patternConfidenceCap  = 0.95
)

// patternMatchers classify error text into named recurring patterns.
var patternMatchers = []struct {
	name string
	re   *regexp.Regexp
}{
	{"slow_generation", regexp.MustCompile(`(?i)(timeout|deadline|timed out)`)},
	{"provider_throttling", regexp.MustCompile(`(?i)(rate.?limit|429|too many requests|quota)`)},
	{"memory_pressure", regexp.MustCompile(`(?i)(memory|oom|heap)`)},
	{"broken_references", regexp.MustCompile(`(?i)(undefined|not defined|nil pointer|unresolved)`)},
	{"transport_flakiness", regexp.MustCompile(`(?i)(network|connection|refused|unavailable)`)},
	{"malformed_output", regexp.MustCompile(`(?i)(invalid|malformed|parse error|unexpected token)`)},
}

// recordPattern classifies the error text and bumps the matching pattern's
// frequency and confidence. Returns nil when nothing matches.
func (e *Engine) recordPattern(errMsg string) *FailurePattern {
	if errMsg == "" {
		return nil
	}
	for _, m := range patternMatchers {
		if !m.re.MatchString(errMsg) {
			continue
		}

		e.mu.Lock()
		p, ok := e.patterns[m.name]
		now := time.Now()
		if !ok {
			p = &FailurePattern{
				Name:       m.name,
				Confidence: patternBaseConfidence,
				FirstSeen:  now,
			}
			e.patterns[m.name] = p
		} else {
			p.Confidence += patternIncrement
			if p.Confidence > patternConfidenceCap {
				p.Confidence = patternConfidenceCap
			}
		}
		p.Occurrences++
		p.LastSeen = now
		out := *p
		e.mu.Unlock()
		return &out
	}
	return nil
}

// Patterns returns the recurring-failure table ranked by frequency.
func (e *Engine) Patterns() []FailurePattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]FailurePattern, 0, len(e.patterns))
	for _, p := range e.patterns {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Name < out[j].Name
	})
	return out
}
