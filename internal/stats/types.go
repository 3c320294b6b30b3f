package stats

// Snapshot is the current value of every counter hash. Keys are rule ids,
// entity types or violation kinds; no text is ever stored.
type Snapshot struct {
	Requests       map[string]int64 `json:"requests"`
	InjectionRules map[string]int64 `json:"injection_rules"`
	PIIEntities    map[string]int64 `json:"pii_entities"`
	BiasRules      map[string]int64 `json:"bias_rules"`
	Violations     map[string]int64 `json:"violations"`
}

// Counter hash names, appended to the key prefix
const (
	hashRequests       = "requests"
	hashInjectionRules = "injection_rules"
	hashPIIEntities    = "pii_entities"
	hashBiasRules      = "bias_rules"
	hashViolations     = "violations"
)

// Fields of the requests hash
const (
	FieldInputTotal    = "input_total"
	FieldInputBlocked  = "input_blocked"
	FieldOutputTotal   = "output_total"
	FieldOutputInvalid = "output_invalid"
)
