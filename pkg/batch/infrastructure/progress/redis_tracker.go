// Package progress publishes the running tally of import jobs.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tigerroll/statreg/pkg/batch/core/config"
	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	"github.com/tigerroll/statreg/pkg/batch/core/ports"
	"github.com/tigerroll/statreg/pkg/batch/support/util/serialization"
)

const moduleName = "progress"

// RedisTracker keeps the progress of each job under <prefix>:job:<id>:progress.
// Keys expire after the configured TTL so abandoned jobs do not accumulate.
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ ports.ProgressTracker = (*RedisTracker)(nil)

// NewRedisClient opens a client and checks the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection to %s failed: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisTracker creates a tracker over an open client.
func NewRedisTracker(client *redis.Client, cfg config.RedisConfig) *RedisTracker {
	return &RedisTracker{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}
}

func (t *RedisTracker) key(jobID string) string {
	if t.prefix == "" {
		return fmt.Sprintf("job:%s:progress", jobID)
	}
	return fmt.Sprintf("%s:job:%s:progress", t.prefix, jobID)
}

// Report overwrites the stored progress of a job.
func (t *RedisTracker) Report(ctx context.Context, jobID string, progress model.Progress) error {
	data, err := serialization.Marshal(moduleName, progress)
	if err != nil {
		return err
	}
	return t.client.Set(ctx, t.key(jobID), data, t.ttl).Err()
}

// Get returns the stored progress. The boolean is false when nothing was reported
// or the key expired.
func (t *RedisTracker) Get(ctx context.Context, jobID string) (model.Progress, bool, error) {
	var p model.Progress
	data, err := t.client.Get(ctx, t.key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return p, false, nil
	}
	if err != nil {
		return p, false, err
	}
	if err := serialization.Unmarshal(moduleName, data, &p); err != nil {
		return p, false, fmt.Errorf("corrupt progress for job %s: %w", jobID, err)
	}
	return p, true, nil
}

// Clear removes the progress of a job.
func (t *RedisTracker) Clear(ctx context.Context, jobID string) error {
	return t.client.Del(ctx, t.key(jobID)).Err()
}

// Close closes the underlying client.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
