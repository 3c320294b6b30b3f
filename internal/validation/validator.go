// Package validation checks LLM output against length, keyword, schema and
// hedging constraints.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"
)

// Validator runs every configured check and accumulates violations
type Validator struct {
	options Options
	logger  *zap.Logger
}

// NewValidator creates a new output validator
func NewValidator(opts Options, log *zap.Logger) (*Validator, error) {
	if opts.MaxLength <= 0 {
		return nil, fmt.Errorf("max output length must be positive, got %d", opts.MaxLength)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Validator{
		options: Options{
			MaxLength:        opts.MaxLength,
			RequiredKeywords: nonEmpty(opts.RequiredKeywords),
			BlockedKeywords:  nonEmpty(opts.BlockedKeywords),
		},
		logger: log,
	}, nil
}

func nonEmpty(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if strings.TrimSpace(k) != "" {
			out = append(out, k)
		}
	}
	return out
}

// Validate checks text. schema is an optional JSON Schema document; nil or
// empty skips the schema check. Validate never fails: a malformed schema is
// reported as a violation.
func (v *Validator) Validate(text string, schema []byte) ValidationResult {
	var violations []Violation

	// Length
	if n := utf8.RuneCountInString(text); n > v.options.MaxLength {
		violations = append(violations, Violation{
			Kind:     KindMaxLength,
			Detail:   fmt.Sprintf("output length (%d) exceeds maximum (%d)", n, v.options.MaxLength),
			Severity: SeverityError,
		})
	}

	// Keywords
	lower := strings.ToLower(text)
	for _, kw := range v.options.BlockedKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			violations = append(violations, Violation{
				Kind:     KindBlockedKeyword,
				Detail:   fmt.Sprintf("blocked keyword found: '%s'", kw),
				Severity: SeverityError,
			})
		}
	}
	for _, kw := range v.options.RequiredKeywords {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			violations = append(violations, Violation{
				Kind:     KindRequiredKeyword,
				Detail:   fmt.Sprintf("required keyword missing: '%s'", kw),
				Severity: SeverityError,
			})
		}
	}

	// Schema
	if len(schema) > 0 {
		violations = append(violations, checkSchema(text, schema)...)
	}

	// Hedging
	score := HedgingDensity(text)
	if score > HedgingThreshold {
		violations = append(violations, Violation{
			Kind:     KindHallucination,
			Detail:   fmt.Sprintf("high hedging-language density (%.2f), possible hallucination", score),
			Severity: SeverityWarning,
		})
	}

	if violations == nil {
		violations = []Violation{}
	}

	if len(violations) > 0 {
		kinds := make([]string, len(violations))
		for i, vi := range violations {
			kinds[i] = vi.Kind
		}
		v.logger.Debug("Output validation failed", zap.Strings("violations", kinds))
	}

	return ValidationResult{
		IsValid:            len(violations) == 0,
		Violations:         violations,
		HallucinationScore: score,
	}
}

// checkSchema validates text as a JSON instance of schema
func checkSchema(text string, schema []byte) []Violation {
	var s jsonschema.Schema
	if err := json.Unmarshal(schema, &s); err != nil {
		return []Violation{schemaViolation("invalid schema: %v", err)}
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return []Violation{schemaViolation("invalid schema: %v", err)}
	}

	var instance any
	if err := json.Unmarshal([]byte(text), &instance); err != nil {
		return []Violation{schemaViolation("output is not valid JSON: %v", err)}
	}

	if err := resolved.Validate(instance); err != nil {
		var out []Violation
		for _, e := range flatten(err) {
			out = append(out, schemaViolation("%v", e))
		}
		return out
	}
	return nil
}

// flatten splits joined errors so each failure becomes its own violation
func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

func schemaViolation(format string, args ...any) Violation {
	return Violation{
		Kind:     KindJSONSchema,
		Detail:   fmt.Sprintf(format, args...),
		Severity: SeverityError,
	}
}
