// Package guardrails composes the PII, injection, bias and output-validation
// guards into a pre-process and post-process pipeline.
package guardrails

import (
	"fmt"

	"github.com/raaihank/llm-guardrails/internal/bias"
	"github.com/raaihank/llm-guardrails/internal/corpus"
	"github.com/raaihank/llm-guardrails/internal/privacy"
	"github.com/raaihank/llm-guardrails/internal/security"
	"github.com/raaihank/llm-guardrails/internal/validation"
	"go.uber.org/zap"
)

// Pipeline runs the guards. It has no mutable state after New returns and is
// safe for concurrent use.
type Pipeline struct {
	config    Config
	corpus    *corpus.Corpus
	redactor  *privacy.Redactor
	injection security.Analyzer
	rules     []security.RuleInfo
	bias      *bias.Scorer
	validator *validation.Validator
	schema    []byte
	logger    *zap.Logger
}

type options struct {
	corpus *corpus.Corpus
	logger *zap.Logger
}

// Option customises pipeline construction
type Option func(*options)

// WithCorpus uses c instead of the built-in rules
func WithCorpus(c *corpus.Corpus) Option {
	return func(o *options) { o.corpus = c }
}

// WithLogger sets the logger passed to every guard
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds every guard up front and fails without returning a pipeline if
// the config or corpus is invalid.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.clone()

	c := o.corpus
	if c == nil {
		var err error
		if c, err = corpus.Default(); err != nil {
			return nil, fmt.Errorf("failed to build default corpus: %w", err)
		}
	}

	redactor, err := privacy.NewRedactor(c, cfg.PIIDetectors, o.logger.Named("pii"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	detector, err := security.NewDetector(c, cfg.InjectionThreshold, o.logger.Named("injection"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	scorer, err := bias.NewScorer(c, bias.Options{ReferenceBalance: cfg.ReferenceBalance}, o.logger.Named("bias"))
	if err != nil {
		return nil, fmt.Errorf("failed to create bias scorer: %w", err)
	}

	validator, err := validation.NewValidator(validation.Options{
		MaxLength:        cfg.MaxOutputLength,
		RequiredKeywords: cfg.RequiredKeywords,
		BlockedKeywords:  cfg.BlockedKeywords,
	}, o.logger.Named("validation"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var schema []byte
	if cfg.JSONSchema != "" {
		schema = []byte(cfg.JSONSchema)
	}

	o.logger.Info("Guardrails pipeline initialized",
		zap.String("corpus_version", c.Version()),
		zap.Int("rules", c.Len()),
		zap.Bool("pii_enabled", cfg.PIIEnabled),
		zap.Bool("injection_enabled", cfg.InjectionEnabled),
		zap.Bool("bias_enabled", cfg.BiasEnabled),
		zap.Bool("output_validation_enabled", cfg.OutputValidationEnabled),
		zap.Float64("injection_threshold", cfg.InjectionThreshold),
	)

	return &Pipeline{
		config:    cfg,
		corpus:    c,
		redactor:  redactor,
		injection: detector,
		rules:     detector.Rules(),
		bias:      scorer,
		validator: validator,
		schema:    schema,
		logger:    o.logger,
	}, nil
}

// Config returns a copy of the pipeline configuration
func (p *Pipeline) Config() Config {
	return p.config.clone()
}

// Corpus returns the rule corpus the guards were built from
func (p *Pipeline) Corpus() *corpus.Corpus {
	return p.corpus
}

// InjectionRules lists the active injection rules
func (p *Pipeline) InjectionRules() []security.RuleInfo {
	out := make([]security.RuleInfo, len(p.rules))
	copy(out, p.rules)
	return out
}

// PreProcess runs PII redaction then injection detection on the sanitised text
func (p *Pipeline) PreProcess(text string) PreProcessResult {
	result := PreProcessResult{
		SanitisedText: text,
		PIIFindings:   []privacy.Finding{},
		Injection: security.InjectionResult{
			MatchedRules: []string{},
			Flags:        []string{},
		},
	}

	if p.config.PIIEnabled {
		redacted := p.redactor.Process(text)
		result.SanitisedText = redacted.SanitisedText
		result.PIIMapping = redacted.Mapping
		result.PIIFindings = redacted.Findings
	}

	if p.config.InjectionEnabled {
		result.Injection = p.injection.Analyze(result.SanitisedText)
		result.Blocked = result.Injection.IsInjection
	}

	if result.Blocked {
		p.logger.Info("Input blocked",
			zap.Strings("rules", result.Injection.MatchedRules),
			zap.Float64("score", result.Injection.Score),
		)
	}

	return result
}

// PostProcess runs output validation, bias scoring and PII restoration. It
// validates against the configured JSON schema, if any.
func (p *Pipeline) PostProcess(text string, mapping privacy.Mapping) PostProcessResult {
	return p.PostProcessWithSchema(text, mapping, p.schema)
}

// PostProcessWithSchema is PostProcess with a per-call schema that replaces
// the configured one. A nil schema skips the schema check.
func (p *Pipeline) PostProcessWithSchema(text string, mapping privacy.Mapping, schema []byte) PostProcessResult {
	result := PostProcessResult{
		FinalText: text,
		Validation: validation.ValidationResult{
			IsValid:    true,
			Violations: []validation.Violation{},
		},
		Bias: bias.Report{
			MatchedRules: []string{},
			Flags:        []string{},
		},
		UnresolvedPlaceholders: []string{},
	}

	if p.config.OutputValidationEnabled {
		result.Validation = p.validator.Validate(text, schema)
	}

	if p.config.BiasEnabled {
		result.Bias = p.bias.Score(text)
	}

	if p.config.PIIEnabled && mapping.Len() > 0 {
		result.FinalText = p.redactor.Restore(text, mapping)
		if unresolved := privacy.Unresolved(text, mapping); len(unresolved) > 0 {
			result.UnresolvedPlaceholders = unresolved
			p.logger.Warn("Output contains placeholders missing from the mapping",
				zap.Int("count", len(unresolved)),
			)
		}
	}

	return result
}
