package rulestore

import (
	"time"

	"github.com/raaihank/llm-guardrails/internal/corpus"
)

// RuleRow is one row of the guard_rules table
type RuleRow struct {
	ID          string    `db:"id" json:"id"`
	Category    string    `db:"category" json:"category"`
	Pattern     string    `db:"pattern" json:"pattern"`
	Weight      float64   `db:"weight" json:"weight"`
	Label       string    `db:"label" json:"label"`
	Description string    `db:"description" json:"description"`
	Position    int       `db:"position" json:"position"`
	Enabled     bool      `db:"enabled" json:"enabled"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Definition converts the row into a loadable rule definition
func (r RuleRow) Definition() corpus.Definition {
	return corpus.Definition{
		ID:          r.ID,
		Category:    corpus.Category(r.Category),
		Pattern:     r.Pattern,
		Weight:      r.Weight,
		Label:       r.Label,
		Description: r.Description,
	}
}

// UpsertResult represents the result of a batch upsert
type UpsertResult struct {
	Written  int64         `json:"written"`
	Duration time.Duration `json:"duration"`
}
