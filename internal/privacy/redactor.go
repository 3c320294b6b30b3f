package privacy

import (
	"fmt"
	"strings"

	"github.com/raaihank/llm-guardrails/internal/corpus"
	"go.uber.org/zap"
)

// Redactor replaces PII with reversible <<LABEL_N>> placeholders. It holds no
// per-call state, so a single instance can serve concurrent callers.
type Redactor struct {
	rules  []corpus.Rule
	logger *zap.Logger
}

// NewRedactor creates a redactor over the PII rules of c. detectors selects
// rules by id; an empty list or "all" enables every rule.
func NewRedactor(c *corpus.Corpus, detectors []string, log *zap.Logger) (*Redactor, error) {
	if c == nil {
		return nil, fmt.Errorf("corpus is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	rules, err := selectRules(c.RulesFor(corpus.CategoryPII), detectors)
	if err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Debug("PII redactor initialized",
		zap.Int("total_rules", c.Count(corpus.CategoryPII)),
		zap.Int("enabled_rules", len(rules)),
	)

	return &Redactor{rules: rules, logger: log}, nil
}

// selectRules keeps declaration order regardless of the order detectors are listed in
func selectRules(all []corpus.Rule, detectors []string) ([]corpus.Rule, error) {
	if len(detectors) == 0 {
		return all, nil
	}

	enabled := make(map[string]bool, len(all))
	for _, detector := range detectors {
		if detector == "all" {
			return all, nil
		}

		found := false
		for _, rule := range all {
			if rule.ID == detector {
				enabled[rule.ID] = true
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown detector: %s", detector)
		}
	}

	rules := make([]corpus.Rule, 0, len(enabled))
	for _, rule := range all {
		if enabled[rule.ID] {
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

// Detectors returns the ids of the active PII rules in evaluation order
func (r *Redactor) Detectors() []string {
	ids := make([]string, len(r.rules))
	for i, rule := range r.rules {
		ids[i] = rule.ID
	}
	return ids
}

// Redact replaces every detected value with a placeholder and returns the
// sanitised text with the mapping needed to restore it.
func (r *Redactor) Redact(text string) (string, Mapping) {
	result := r.Process(text)
	return result.SanitisedText, result.Mapping
}

// candidate is the next match of one rule at or after the cursor
type candidate struct {
	start, end int
	ok         bool
}

// Process redacts text and also reports per-category findings.
//
// Matches are resolved left to right: the leftmost unclaimed match wins and,
// on the same start offset, the earlier-declared rule wins. A rule whose next
// match overlaps a claimed span is searched again from the end of that span.
// The same literal value within a category always reuses its first placeholder.
func (r *Redactor) Process(text string) ProcessResult {
	result := ProcessResult{SanitisedText: text, Findings: []Finding{}}
	if text == "" || len(r.rules) == 0 {
		return result
	}

	next := make([]candidate, len(r.rules))
	for i, rule := range r.rules {
		next[i].start, next[i].end, next[i].ok = rule.NextSpan(text, 0)
	}

	var (
		b         strings.Builder
		mapping   Mapping
		cursor    int
		assigned  = make(map[string]string)
		counters  = make(map[string]int)
		findings  = make(map[string]*Finding)
		findOrder []string
	)
	b.Grow(len(text))

	for {
		best := -1
		for i, c := range next {
			if c.ok && (best < 0 || c.start < next[best].start) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		c := next[best]

		rule := r.rules[best]
		value := text[c.start:c.end]

		key := rule.Label + "\x00" + value
		placeholder, ok := assigned[key]
		if !ok {
			placeholder = nextPlaceholder(text, rule.Label, counters)
			assigned[key] = placeholder
			mapping.Set(placeholder, value)
		}

		f, seen := findings[rule.ID]
		if !seen {
			f = &Finding{EntityType: rule.ID, Label: rule.Label}
			findings[rule.ID] = f
			findOrder = append(findOrder, rule.ID)
		}
		f.Count++
		if !ok {
			f.Distinct++
		}

		b.WriteString(text[cursor:c.start])
		b.WriteString(placeholder)
		cursor = c.end

		for i := range next {
			if next[i].ok && next[i].start < cursor {
				next[i].start, next[i].end, next[i].ok = r.rules[i].NextSpan(text, cursor)
			}
		}
	}
	if len(findOrder) == 0 {
		return result
	}
	b.WriteString(text[cursor:])

	for _, id := range findOrder {
		result.Findings = append(result.Findings, *findings[id])
	}
	result.SanitisedText = b.String()
	result.Mapping = mapping

	r.logger.Debug("PII detected and redacted",
		zap.Int("placeholders", mapping.Len()),
		zap.Any("findings", result.Findings),
	)

	return result
}

// nextPlaceholder skips numbers whose placeholder already occurs literally in
// the input, so restoring never rewrites text the caller wrote.
func nextPlaceholder(text, label string, counters map[string]int) string {
	for {
		counters[label]++
		placeholder := fmt.Sprintf("<<%s_%d>>", label, counters[label])
		if !strings.Contains(text, placeholder) {
			return placeholder
		}
	}
}

// Restore is a convenience wrapper around the package-level Restore
func (r *Redactor) Restore(text string, mapping Mapping) string {
	return Restore(text, mapping)
}
