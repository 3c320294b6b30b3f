package server

import (
	"encoding/json"

	"github.com/raaihank/llm-guardrails/internal/guardrails"
	"github.com/raaihank/llm-guardrails/internal/privacy"
	"github.com/raaihank/llm-guardrails/internal/security"
)

// InputRequest is the body of POST /guard/input
type InputRequest struct {
	Text string `json:"text"`
}

// OutputRequest is the body of POST /guard/output
type OutputRequest struct {
	Text       string          `json:"text"`
	PIIMapping privacy.Mapping `json:"pii_mapping"`
	// JSONSchema replaces the configured schema for this call
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// FullRequest is the body of POST /guard/full
type FullRequest struct {
	Text                 string  `json:"text"`
	SimulatedLLMResponse *string `json:"simulated_llm_response,omitempty"`
}

// FullResponse is the result of both stages around a simulated model call
type FullResponse struct {
	Input       guardrails.PreProcessResult   `json:"input"`
	LLMResponse string                        `json:"llm_response,omitempty"`
	Output      *guardrails.PostProcessResult `json:"output,omitempty"`
	Blocked     bool                          `json:"blocked"`
	FinalText   string                        `json:"final_text,omitempty"`
}

// InfoResponse is the body of GET /info
type InfoResponse struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	CorpusVersion string            `json:"corpus_version"`
	Rules         map[string]int    `json:"rules"`
	Config        guardrails.Config `json:"config"`
	Uptime        string            `json:"uptime"`
	StatsEnabled  bool              `json:"stats_enabled"`
}

// RuleView describes one PII or bias rule
type RuleView struct {
	ID          string  `json:"id"`
	Weight      float64 `json:"weight"`
	Label       string  `json:"label,omitempty"`
	Description string  `json:"description,omitempty"`
}

// RulesResponse is the body of GET /rules
type RulesResponse struct {
	CorpusVersion string              `json:"corpus_version"`
	Injection     []security.RuleInfo `json:"injection"`
	PII           []RuleView          `json:"pii"`
	Bias          []RuleView          `json:"bias"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
