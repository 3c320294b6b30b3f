// Package rulestore loads additional rule definitions from PostgreSQL.
package rulestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raaihank/llm-guardrails/internal/config"
	"github.com/raaihank/llm-guardrails/internal/corpus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const schema = `
	CREATE TABLE IF NOT EXISTS guard_rules (
		id          TEXT PRIMARY KEY,
		category    TEXT NOT NULL CHECK (category IN ('pii', 'injection', 'bias')),
		pattern     TEXT NOT NULL,
		weight      DOUBLE PRECISION NOT NULL CHECK (weight >= 0 AND weight <= 1),
		label       TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		position    INTEGER NOT NULL DEFAULT 0,
		enabled     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// Store reads and writes rule definitions in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to the database and ensures the table exists
func NewStore(cfg config.RuleStoreConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := NewStoreWithDB(db, logger)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Rule store initialized successfully",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return store, nil
}

// NewStoreWithDB wraps an existing connection
func NewStoreWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Migrate creates the guard_rules table if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create guard_rules table: %w", err)
	}
	return nil
}

// LoadDefinitions returns the enabled rules ordered by category then position.
// Within a category the returned order is the evaluation order.
func (s *Store) LoadDefinitions(ctx context.Context) ([]corpus.Definition, error) {
	var rows []RuleRow
	query := `
		SELECT id, category, pattern, weight, label, description, position, enabled, created_at, updated_at
		FROM guard_rules
		WHERE enabled
		ORDER BY category, position, id`

	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		s.logger.Error("Failed to load rule definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to load rule definitions: %w", err)
	}

	defs := make([]corpus.Definition, len(rows))
	for i, row := range rows {
		defs[i] = row.Definition()
	}

	s.logger.Info("Loaded rule definitions", zap.Int("rules", len(defs)))
	return defs, nil
}

// Upsert writes definitions in one statement. They are first compiled
// together with the built-in rules, so a definition that would later break
// corpus construction is rejected before anything is written. Positions
// follow slice order.
func (s *Store) Upsert(ctx context.Context, defs []corpus.Definition) (*UpsertResult, error) {
	if len(defs) == 0 {
		return &UpsertResult{}, nil
	}

	if _, err := corpus.New(append(corpus.DefaultDefinitions(), defs...)...); err != nil {
		return nil, fmt.Errorf("rejected rule definitions: %w", err)
	}

	start := time.Now()

	valueStrings := make([]string, 0, len(defs))
	valueArgs := make([]interface{}, 0, len(defs)*7)
	for i, def := range defs {
		n := i * 7
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, TRUE)", n+1, n+2, n+3, n+4, n+5, n+6, n+7))
		valueArgs = append(valueArgs,
			def.ID,
			string(def.Category),
			def.Pattern,
			def.Weight,
			def.Label,
			def.Description,
			i,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO guard_rules (id, category, pattern, weight, label, description, position, enabled)
		VALUES %s
		ON CONFLICT (id) DO UPDATE SET
			category = EXCLUDED.category,
			pattern = EXCLUDED.pattern,
			weight = EXCLUDED.weight,
			label = EXCLUDED.label,
			description = EXCLUDED.description,
			position = EXCLUDED.position,
			enabled = TRUE,
			updated_at = NOW()`,
		strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		s.logger.Error("Rule upsert failed", zap.Error(err))
		return nil, fmt.Errorf("rule upsert failed: %w", err)
	}

	written, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		written = int64(len(defs))
	}

	result := &UpsertResult{Written: written, Duration: time.Since(start)}
	s.logger.Info("Rule upsert completed",
		zap.Int64("written", result.Written),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// SetEnabled toggles a rule without deleting it
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE guard_rules SET enabled = $1, updated_at = NOW() WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to update rule %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rule %s not found", id)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ReadDefinitionsFile reads a YAML or JSON file with a top-level "rules" list
func ReadDefinitionsFile(path string) ([]corpus.Definition, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var defs []corpus.Definition
	if err := v.UnmarshalKey("rules", &defs); err != nil {
		return nil, fmt.Errorf("failed to decode rules file: %w", err)
	}
	return defs, nil
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	// Simple masking - replace password with ***
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
