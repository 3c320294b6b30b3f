package security

// InjectionResult represents the result of injection analysis
type InjectionResult struct {
	Score        float64  `json:"score"`
	IsInjection  bool     `json:"is_injection"`
	MatchedRules []string `json:"matched_rules"`
	Flags        []string `json:"flags"`
}

// RuleInfo describes one active injection rule without its pattern
type RuleInfo struct {
	ID          string  `json:"id"`
	Weight      float64 `json:"weight"`
	Explanation string  `json:"explanation"`
}
