package validation

// Violation kinds
const (
	KindMaxLength       = "max_length"
	KindBlockedKeyword  = "blocked_keyword"
	KindRequiredKeyword = "required_keyword"
	KindJSONSchema      = "json_schema"
	KindHallucination   = "hallucination"
)

// Severities
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Violation is one failed check
type Violation struct {
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
	Severity string `json:"severity"`
}

// ValidationResult contains every violation found in one output
type ValidationResult struct {
	IsValid            bool        `json:"is_valid"`
	Violations         []Violation `json:"violations"`
	HallucinationScore float64     `json:"hallucination_score"`
}

// Options configures the validator
type Options struct {
	MaxLength        int
	RequiredKeywords []string
	BlockedKeywords  []string
}
