package guardrails

import (
	"github.com/raaihank/llm-guardrails/internal/bias"
	"github.com/raaihank/llm-guardrails/internal/privacy"
	"github.com/raaihank/llm-guardrails/internal/security"
	"github.com/raaihank/llm-guardrails/internal/validation"
)

// PreProcessResult is the outcome of the input guards
type PreProcessResult struct {
	SanitisedText string                   `json:"sanitised_text"`
	PIIMapping    privacy.Mapping          `json:"pii_mapping"`
	PIIFindings   []privacy.Finding        `json:"pii_findings"`
	Injection     security.InjectionResult `json:"injection"`
	// Blocked is advisory: the caller must not forward the text when set
	Blocked bool `json:"blocked"`
}

// PostProcessResult is the outcome of the output guards
type PostProcessResult struct {
	FinalText  string                      `json:"final_text"`
	Validation validation.ValidationResult `json:"validation"`
	Bias       bias.Report                 `json:"bias"`
	// UnresolvedPlaceholders lists placeholder-shaped tokens in the output
	// that the mapping could not restore
	UnresolvedPlaceholders []string `json:"unresolved_placeholders"`
}
