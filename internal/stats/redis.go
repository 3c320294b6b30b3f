// Package stats keeps aggregate detection counters in Redis so several
// service instances can share them.
package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/llm-guardrails/internal/config"
	"github.com/raaihank/llm-guardrails/internal/guardrails"
	"go.uber.org/zap"
)

// Counter records guard outcomes in Redis hashes
type Counter struct {
	client *redis.Client
	config config.StatsConfig
	logger *zap.Logger
}

// NewCounter creates a new Redis-backed counter and checks the connection
func NewCounter(cfg config.StatsConfig, logger *zap.Logger) (*Counter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Parse Redis URL
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	if cfg.MaxConnections > 0 {
		opts.PoolSize = cfg.MaxConnections
	}
	opts.MinIdleConns = cfg.MinIdleConns

	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "guardrails"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}

	counter := &Counter{
		client: redis.NewClient(opts),
		config: cfg,
		logger: logger,
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := counter.client.Ping(ctx).Err(); err != nil {
		counter.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Stats counter initialized successfully",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.String("key_prefix", cfg.KeyPrefix))

	return counter, nil
}

func (c *Counter) key(hash string) string {
	return c.config.KeyPrefix + ":stats:" + hash
}

// RecordInput increments the counters for one pre-process result
func (c *Counter) RecordInput(ctx context.Context, pre guardrails.PreProcessResult) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	pipe := c.client.TxPipeline()
	pipe.HIncrBy(ctx, c.key(hashRequests), FieldInputTotal, 1)
	if pre.Blocked {
		pipe.HIncrBy(ctx, c.key(hashRequests), FieldInputBlocked, 1)
	}
	for _, rule := range pre.Injection.MatchedRules {
		pipe.HIncrBy(ctx, c.key(hashInjectionRules), rule, 1)
	}
	for _, f := range pre.PIIFindings {
		pipe.HIncrBy(ctx, c.key(hashPIIEntities), f.EntityType, int64(f.Count))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("Failed to record input stats", zap.Error(err))
		return fmt.Errorf("failed to record input stats: %w", err)
	}
	return nil
}

// RecordOutput increments the counters for one post-process result
func (c *Counter) RecordOutput(ctx context.Context, post guardrails.PostProcessResult) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	pipe := c.client.TxPipeline()
	pipe.HIncrBy(ctx, c.key(hashRequests), FieldOutputTotal, 1)
	if !post.Validation.IsValid {
		pipe.HIncrBy(ctx, c.key(hashRequests), FieldOutputInvalid, 1)
	}
	for _, v := range post.Validation.Violations {
		pipe.HIncrBy(ctx, c.key(hashViolations), v.Kind, 1)
	}
	for _, rule := range post.Bias.MatchedRules {
		pipe.HIncrBy(ctx, c.key(hashBiasRules), rule, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("Failed to record output stats", zap.Error(err))
		return fmt.Errorf("failed to record output stats: %w", err)
	}
	return nil
}

// Snapshot reads every counter hash
func (c *Counter) Snapshot(ctx context.Context) (*Snapshot, error) {
	hashes := []string{hashRequests, hashInjectionRules, hashPIIEntities, hashBiasRules, hashViolations}

	pipe := c.client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(hashes))
	for i, h := range hashes {
		cmds[i] = pipe.HGetAll(ctx, c.key(h))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	values := make([]map[string]int64, len(hashes))
	for i, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("failed to read %s: %w", hashes[i], err)
		}
		parsed, err := parseCounts(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt counter hash %s: %w", hashes[i], err)
		}
		values[i] = parsed
	}

	return &Snapshot{
		Requests:       values[0],
		InjectionRules: values[1],
		PIIEntities:    values[2],
		BiasRules:      values[3],
		Violations:     values[4],
	}, nil
}

func parseCounts(raw map[string]string) (map[string]int64, error) {
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}

// Reset removes all counters under the key prefix
func (c *Counter) Reset(ctx context.Context) error {
	pattern := c.config.KeyPrefix + ":stats:*"

	// Use SCAN to find all keys with our prefix
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan stats keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Error("Failed to delete stats keys", zap.Error(err))
		return fmt.Errorf("failed to delete stats keys: %w", err)
	}

	c.logger.Info("Stats reset", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *Counter) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
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
