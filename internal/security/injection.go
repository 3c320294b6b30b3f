package security

import (
	"fmt"
	"math"

	"github.com/raaihank/llm-guardrails/internal/corpus"
	"go.uber.org/zap"
)

// DefaultThreshold is the injection score at or above which text is blocked
const DefaultThreshold = 0.5

// Detector scores text against the injection rules of a corpus
type Detector struct {
	rules     []corpus.Rule
	threshold float64
	logger    *zap.Logger
}

// NewDetector creates a new injection detector. threshold must lie in [0,1].
func NewDetector(c *corpus.Corpus, threshold float64, log *zap.Logger) (*Detector, error) {
	if c == nil {
		return nil, fmt.Errorf("corpus is required")
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("injection threshold %v outside [0,1]", threshold)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Detector{
		rules:     c.RulesFor(corpus.CategoryInjection),
		threshold: threshold,
		logger:    log,
	}, nil
}

// Threshold returns the configured blocking threshold
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Score returns the noisy-OR aggregate of every matching rule weight
func (d *Detector) Score(text string) float64 {
	return d.Analyze(text).Score
}

// Detect reports whether the score reaches the threshold (inclusive)
func (d *Detector) Detect(text string) bool {
	return d.Analyze(text).IsInjection
}

// Analyze evaluates all injection rules against text
func (d *Detector) Analyze(text string) InjectionResult {
	result := InjectionResult{
		MatchedRules: []string{},
		Flags:        []string{},
	}
	weights := make([]float64, 0, len(d.rules))
	for _, rule := range d.rules {
		if !rule.Matches(text) {
			continue
		}
		weights = append(weights, rule.Weight)
		result.MatchedRules = append(result.MatchedRules, rule.ID)
		if rule.Description != "" {
			result.Flags = append(result.Flags, rule.Description)
		}
	}

	result.Score = corpus.NoisyOR(weights...)
	result.IsInjection = result.Score >= d.threshold

	if len(result.MatchedRules) > 0 {
		d.logger.Debug("Injection rules matched",
			zap.Strings("rules", result.MatchedRules),
			zap.Float64("score", result.Score),
			zap.Bool("is_injection", result.IsInjection),
		)
	}

	return result
}

// Rules lists the active rules in evaluation order
func (d *Detector) Rules() []RuleInfo {
	out := make([]RuleInfo, len(d.rules))
	for i, rule := range d.rules {
		out[i] = RuleInfo{ID: rule.ID, Weight: rule.Weight, Explanation: rule.Description}
	}
	return out
}
