package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillerious/torn-target-tracker/pkg/torn"
)

// Redis key layout.
const (
	redisSnapshotKey = "torn:targets:snapshot"
	redisIgnoredKey  = "torn:targets:ignored"
)

// snapshotPayload is the JSON document stored under redisSnapshotKey.
type snapshotPayload struct {
	App       string              `json:"app"`
	Version   string              `json:"version"`
	UpdatedAt string              `json:"updatedAt"`
	Items     []torn.TargetRecord `json:"items"`
}

// Redis persists tracker state in a shared Redis instance. Snapshots and the
// ignore list each live under a single key as a JSON document; entries never
// expire, the latest save wins.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed store over an existing client.
func NewRedis(client *redis.Client) *Redis {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &Redis{client: client}
}

// SaveSnapshot replaces the persisted snapshot.
func (r *Redis) SaveSnapshot(ctx context.Context, records []torn.TargetRecord) error {
	payload := snapshotPayload{
		App:       appName,
		Version:   fileVersion,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Items:     records,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, redisSnapshotKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the persisted snapshot, empty when the key is unset.
func (r *Redis) LoadSnapshot(ctx context.Context) ([]torn.TargetRecord, error) {
	data, err := r.client.Get(ctx, redisSnapshotKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []torn.TargetRecord{}, nil
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}

	var payload snapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if payload.Items == nil {
		payload.Items = []torn.TargetRecord{}
	}
	return payload.Items, nil
}

// SaveIgnored replaces the persisted ignore list.
func (r *Redis) SaveIgnored(ctx context.Context, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal ignore list: %w", err)
	}
	if err := r.client.Set(ctx, redisIgnoredKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set ignore list: %w", err)
	}
	return nil
}

// LoadIgnored returns the persisted ignore list, empty when unset.
func (r *Redis) LoadIgnored(ctx context.Context) ([]int64, error) {
	data, err := r.client.Get(ctx, redisIgnoredKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []int64{}, nil
		}
		return nil, fmt.Errorf("redis get ignore list: %w", err)
	}

	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode ignore list: %w", err)
	}
	return ids, nil
}

// Close closes the underlying Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
