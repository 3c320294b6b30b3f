package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidRule is wrapped by every construction error caused by a bad definition
var ErrInvalidRule = errors.New("invalid rule")

var labelPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Corpus is an immutable, ordered collection of compiled rules grouped by
// category. It is safe for concurrent use; changing rules means building a
// new Corpus.
type Corpus struct {
	byCategory map[Category][]Rule
	version    string
	size       int
}

// New compiles the given definitions in declaration order and fails on the
// first malformed one.
func New(defs ...Definition) (*Corpus, error) {
	c := &Corpus{
		byCategory: make(map[Category][]Rule, len(Categories)),
	}

	seen := make(map[string]bool, len(defs))
	hasher := sha256.New()

	for i, def := range defs {
		rule, err := compile(def)
		if err != nil {
			return nil, fmt.Errorf("definition %d: %w", i, err)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, rule.ID)
		}
		seen[rule.ID] = true

		c.byCategory[rule.Category] = append(c.byCategory[rule.Category], rule)
		c.size++

		hasher.Write([]byte(string(rule.Category) + "\x00" + rule.ID + "\x00" + def.Pattern + "\x00" +
			strconv.FormatFloat(rule.Weight, 'g', -1, 64) + "\x00" + rule.Label + "\n"))
	}

	c.version = hex.EncodeToString(hasher.Sum(nil))[:12]
	return c, nil
}

// Default builds the corpus from the built-in rule tables
func Default() (*Corpus, error) {
	return New(DefaultDefinitions()...)
}

// compile validates a single definition and compiles its matcher
func compile(def Definition) (Rule, error) {
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return Rule{}, fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	if !def.Category.Valid() {
		return Rule{}, fmt.Errorf("%w: rule %q has unknown category %q", ErrInvalidRule, id, def.Category)
	}
	if math.IsNaN(def.Weight) || def.Weight < 0 || def.Weight > 1 {
		return Rule{}, fmt.Errorf("%w: rule %q weight %v outside [0,1]", ErrInvalidRule, id, def.Weight)
	}
	if def.Pattern == "" {
		return Rule{}, fmt.Errorf("%w: rule %q has an empty pattern", ErrInvalidRule, id)
	}

	matcher, err := regexp.Compile(def.Pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, id, err)
	}
	anchored, err := regexp.Compile(`^(?s:.)(?:` + def.Pattern + `)`)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, id, err)
	}

	label := def.Label
	if label == "" && def.Category == CategoryPII {
		label = strings.ToUpper(id)
	}
	if label != "" && !labelPattern.MatchString(label) {
		return Rule{}, fmt.Errorf("%w: rule %q label %q must match %s", ErrInvalidRule, id, label, labelPattern)
	}

	valueGroup := 0
	if idx := matcher.SubexpIndex("value"); idx > 0 {
		valueGroup = idx
	}

	return Rule{
		ID:          id,
		Category:    def.Category,
		Matcher:     matcher,
		Weight:      def.Weight,
		Label:       label,
		Description: def.Description,
		valueGroup:  valueGroup,
		anchored:    anchored,
	}, nil
}

// RulesFor returns the rules of one category in declaration order. The
// returned slice is a copy.
func (c *Corpus) RulesFor(category Category) []Rule {
	rules := c.byCategory[category]
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Version is a short content hash of the ordered definitions
func (c *Corpus) Version() string {
	return c.version
}

// Len returns the total number of rules
func (c *Corpus) Len() int {
	return c.size
}

// Count returns the number of rules in a category
func (c *Corpus) Count(category Category) int {
	return len(c.byCategory[category])
}
