// Package bias scores LLM output for stereotyping and generalisation language.
package bias

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/raaihank/llm-guardrails/internal/corpus"
	"go.uber.org/zap"
)

const (
	// ImbalanceRuleID names the gender-reference balance signal in reports
	ImbalanceRuleID = "gender_reference_imbalance"
	// ImbalanceWeight is the signal's contribution to the aggregate score
	ImbalanceWeight = 0.25
	// ImbalanceRatio is the minimum ratio between reference counts that fires
	ImbalanceRatio = 3.0
)

var (
	maleTokens = map[string]bool{
		"he": true, "him": true, "his": true, "man": true, "men": true, "boy": true,
		"boys": true, "male": true, "father": true, "husband": true,
	}
	femaleTokens = map[string]bool{
		"she": true, "her": true, "hers": true, "woman": true, "women": true, "girl": true,
		"girls": true, "female": true, "mother": true, "wife": true,
	}
)

// Report is the result of scoring one text
type Report struct {
	Score        float64  `json:"score"`
	MatchedRules []string `json:"matched_rules"`
	Flags        []string `json:"flags"`
}

// Options tune the scorer beyond the rule corpus
type Options struct {
	// ReferenceBalance enables the gender-reference imbalance signal
	ReferenceBalance bool
}

// Scorer scores text against the bias rules of a corpus
type Scorer struct {
	rules   []corpus.Rule
	options Options
	logger  *zap.Logger
}

// NewScorer creates a new bias scorer
func NewScorer(c *corpus.Corpus, opts Options, log *zap.Logger) (*Scorer, error) {
	if c == nil {
		return nil, fmt.Errorf("corpus is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Scorer{
		rules:   c.RulesFor(corpus.CategoryBias),
		options: opts,
		logger:  log,
	}, nil
}

// Score evaluates every bias rule against text. Flags follow rule declaration
// order and appear once per rule.
func (s *Scorer) Score(text string) Report {
	report := Report{MatchedRules: []string{}, Flags: []string{}}

	weights := make([]float64, 0, len(s.rules)+1)
	for _, rule := range s.rules {
		if !rule.Matches(text) {
			continue
		}
		weights = append(weights, rule.Weight)
		report.MatchedRules = append(report.MatchedRules, rule.ID)
		if rule.Description != "" {
			report.Flags = append(report.Flags, rule.Description)
		}
	}

	if s.options.ReferenceBalance {
		if flag, ok := referenceImbalance(text); ok {
			weights = append(weights, ImbalanceWeight)
			report.MatchedRules = append(report.MatchedRules, ImbalanceRuleID)
			report.Flags = append(report.Flags, flag)
		}
	}

	report.Score = corpus.NoisyOR(weights...)

	if len(report.MatchedRules) > 0 {
		s.logger.Debug("Bias signals matched",
			zap.Strings("rules", report.MatchedRules),
			zap.Float64("score", report.Score),
		)
	}

	return report
}

// referenceImbalance compares whole-word male and female reference counts
func referenceImbalance(text string) (string, bool) {
	var male, female int
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		switch {
		case maleTokens[w]:
			male++
		case femaleTokens[w]:
			female++
		}
	}

	if male == 0 || female == 0 {
		return "", false
	}

	dominant, other := "male", "female"
	hi, lo := male, female
	if female > male {
		dominant, other = "female", "male"
		hi, lo = female, male
	}

	ratio := float64(hi) / float64(lo)
	if ratio < ImbalanceRatio {
		return "", false
	}
	return fmt.Sprintf("Gender-reference imbalance: %s references outnumber %s references %.1fx", dominant, other, ratio), true
}
