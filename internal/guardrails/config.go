package guardrails

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is wrapped by every configuration validation error
var ErrInvalidConfig = errors.New("invalid guardrails config")

// Config holds per-pipeline guard settings. A pipeline copies it at
// construction; changing settings means building a new pipeline.
type Config struct {
	InjectionThreshold      float64 `json:"injection_threshold"`
	PIIEnabled              bool    `json:"pii_enabled"`
	InjectionEnabled        bool    `json:"injection_enabled"`
	BiasEnabled             bool    `json:"bias_enabled"`
	OutputValidationEnabled bool    `json:"output_validation_enabled"`
	MaxOutputLength         int     `json:"max_output_length"`

	// PIIDetectors selects PII rules by id; empty or "all" enables every rule
	PIIDetectors     []string `json:"pii_detectors,omitempty"`
	RequiredKeywords []string `json:"required_keywords,omitempty"`
	BlockedKeywords  []string `json:"blocked_keywords,omitempty"`
	// JSONSchema is checked against every output when non-empty
	JSONSchema       string `json:"json_schema,omitempty"`
	ReferenceBalance bool   `json:"reference_balance"`
}

// DefaultConfig returns a configuration with every guard enabled
func DefaultConfig() Config {
	return Config{
		InjectionThreshold:      0.5,
		PIIEnabled:              true,
		InjectionEnabled:        true,
		BiasEnabled:             true,
		OutputValidationEnabled: true,
		MaxOutputLength:         4096,
	}
}

// Validate checks value ranges
func (c Config) Validate() error {
	if math.IsNaN(c.InjectionThreshold) || c.InjectionThreshold < 0 || c.InjectionThreshold > 1 {
		return fmt.Errorf("%w: injection threshold %v outside [0,1]", ErrInvalidConfig, c.InjectionThreshold)
	}
	if c.MaxOutputLength <= 0 {
		return fmt.Errorf("%w: max output length must be positive, got %d", ErrInvalidConfig, c.MaxOutputLength)
	}
	return nil
}

// clone copies the slices so the pipeline never shares them with the caller
func (c Config) clone() Config {
	out := c
	out.PIIDetectors = append([]string(nil), c.PIIDetectors...)
	out.RequiredKeywords = append([]string(nil), c.RequiredKeywords...)
	out.BlockedKeywords = append([]string(nil), c.BlockedKeywords...)
	return out
}
