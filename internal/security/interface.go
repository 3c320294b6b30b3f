package security

// Analyzer scores text for prompt-injection risk. *Detector is the rule-based
// implementation; the pipeline and evaluation code depend only on this.
type Analyzer interface {
	Analyze(text string) InjectionResult
	Threshold() float64
}

var _ Analyzer = (*Detector)(nil)
