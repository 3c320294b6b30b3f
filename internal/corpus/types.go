package corpus

import (
	"regexp"
	"unicode/utf8"
)

// Category identifies which guard a rule belongs to
type Category string

const (
	// CategoryPII marks rules that detect personal data to redact
	CategoryPII Category = "pii"
	// CategoryInjection marks adversarial prompt-injection techniques
	CategoryInjection Category = "injection"
	// CategoryBias marks stereotyping and generalisation patterns
	CategoryBias Category = "bias"
)

// Categories lists every category in evaluation order
var Categories = []Category{CategoryPII, CategoryInjection, CategoryBias}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryPII, CategoryInjection, CategoryBias:
		return true
	default:
		return false
	}
}

// Definition is the uncompiled, loadable form of a rule
type Definition struct {
	ID          string   `yaml:"id" mapstructure:"id" json:"id" db:"id"`
	Category    Category `yaml:"category" mapstructure:"category" json:"category" db:"category"`
	Pattern     string   `yaml:"pattern" mapstructure:"pattern" json:"pattern" db:"pattern"`
	Weight      float64  `yaml:"weight" mapstructure:"weight" json:"weight" db:"weight"`
	Label       string   `yaml:"label" mapstructure:"label" json:"label,omitempty" db:"label"`
	Description string   `yaml:"description" mapstructure:"description" json:"description,omitempty" db:"description"`
}

// Rule is a compiled detection rule. Rules are never modified after the
// corpus that owns them has been built.
type Rule struct {
	ID          string
	Category    Category
	Matcher     *regexp.Regexp
	Weight      float64
	Label       string
	Description string

	// valueGroup is the submatch index of the "value" group, 0 for the whole match
	valueGroup int
	// anchored matches the pattern right after one rune of left context
	anchored *regexp.Regexp
}

// Matches reports whether the rule fires anywhere in text
func (r Rule) Matches(text string) bool {
	return r.Matcher.MatchString(text)
}

// Spans returns the byte offsets of every non-overlapping match in text.
// When the pattern declares a group named "value" only that group is returned,
// which lets a rule require surrounding context without claiming it.
func (r Rule) Spans(text string) [][2]int {
	matches := r.Matcher.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	spans := make([][2]int, 0, len(matches))
	for _, m := range matches {
		start, end := m[2*r.valueGroup], m[2*r.valueGroup+1]
		if start < 0 || end <= start {
			continue
		}
		spans = append(spans, [2]int{start, end})
	}
	return spans
}

// NextSpan returns the first match whose full extent starts at or after from.
// Word boundaries and anchors at from are judged against the rune before it,
// so the result agrees with a scan of the whole text.
func (r Rule) NextSpan(text string, from int) (start, end int, ok bool) {
	for pos := from; pos <= len(text); {
		if pos > 0 && r.anchored != nil {
			_, width := utf8.DecodeLastRuneInString(text[:pos])
			if m := r.anchored.FindStringSubmatchIndex(text[pos-width:]); m != nil {
				if start, end, ok = r.span(m, pos-width, pos); ok {
					return start, end, true
				}
			}
		}

		m := r.Matcher.FindStringSubmatchIndex(text[pos:])
		if m == nil {
			return 0, 0, false
		}
		matchStart := m[0] + pos
		// a match at the cut has no left context and was settled above
		if matchStart > pos || pos == 0 || r.anchored == nil {
			if start, end, ok = r.span(m, pos, matchStart); ok {
				return start, end, true
			}
		}
		pos = advance(text, matchStart)
	}
	return 0, 0, false
}

func (r Rule) span(m []int, offset, matchStart int) (start, end int, ok bool) {
	lo, hi := m[2*r.valueGroup], m[2*r.valueGroup+1]
	if lo < 0 {
		return 0, 0, false
	}
	start, end = lo+offset, hi+offset
	if r.valueGroup == 0 {
		start = matchStart
	}
	return start, end, end > start
}

func advance(text string, pos int) int {
	if pos >= len(text) {
		return len(text) + 1
	}
	_, width := utf8.DecodeRuneInString(text[pos:])
	return pos + width
}
