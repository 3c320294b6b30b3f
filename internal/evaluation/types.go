package evaluation

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is one labelled example. Label 1 marks an injection attempt.
type Record struct {
	Text      string `csv:"text" parquet:"text" json:"text"`
	LabelText string `csv:"label_text" parquet:"label_text" json:"label_text"`
	Label     int    `csv:"label" parquet:"label" json:"label"`
}

// Config contains evaluation run configuration
type Config struct {
	BatchSize      int `yaml:"batch_size" mapstructure:"batch_size"`           // 500
	WorkerCount    int `yaml:"worker_count" mapstructure:"worker_count"`       // 4
	ProgressReport int `yaml:"progress_report" mapstructure:"progress_report"` // 5000
	MaxTextLength  int `yaml:"max_text_length" mapstructure:"max_text_length"` // 10000
	// MaxMisses caps the misclassified examples kept in the report
	MaxMisses int `yaml:"max_misses" mapstructure:"max_misses"` // 20
}

// DefaultConfig returns the settings used by the evaluate command
func DefaultConfig() Config {
	return Config{
		BatchSize:      500,
		WorkerCount:    4,
		ProgressReport: 5000,
		MaxTextLength:  10000,
		MaxMisses:      20,
	}
}

// Report summarises how the input guards classified a dataset
type Report struct {
	CorpusVersion string        `json:"corpus_version"`
	Threshold     float64       `json:"threshold"`
	TotalRecords  int64         `json:"total_records"`
	Skipped       int64         `json:"skipped"`
	Duration      time.Duration `json:"duration"`

	TruePositives  int64 `json:"true_positives"`
	FalsePositives int64 `json:"false_positives"`
	TrueNegatives  int64 `json:"true_negatives"`
	FalseNegatives int64 `json:"false_negatives"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Accuracy  float64 `json:"accuracy"`

	RuleHits    map[string]int64       `json:"rule_hits"`
	PIIRecords  int64                  `json:"pii_records"`
	ByLabelText map[string]*LabelStats `json:"by_label_text"`
	Misses      []Miss                 `json:"misses,omitempty"`
}

// LabelStats counts detections per label_text value
type LabelStats struct {
	Total    int64 `json:"total"`
	Detected int64 `json:"detected"`
}

// Miss is a misclassified example. Text is the sanitised input.
type Miss struct {
	Text         string   `json:"text"`
	Label        int      `json:"label"`
	Score        float64  `json:"score"`
	MatchedRules []string `json:"matched_rules"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) (FileFormat, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, true
	case ".parquet":
		return FormatParquet, true
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, true
	default:
		return "", false
	}
}
