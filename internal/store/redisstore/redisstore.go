// Package redisstore holds the short-lived state kept in redis: the
// per-call reply lock and the senior profile cache.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	callLockTTL     = 2 * time.Minute
	profileCacheTTL = 10 * time.Minute
)

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// AcquireCallLock takes the per-call reply lock. It returns false when
// another reply for the same call is already in flight.
func (s *Store) AcquireCallLock(ctx context.Context, callID string) (bool, error) {
	return s.rdb.SetNX(ctx, "call_lock:"+callID, 1, callLockTTL).Result()
}

func (s *Store) ReleaseCallLock(ctx context.Context, callID string) error {
	return s.rdb.Del(ctx, "call_lock:"+callID).Err()
}

// GetSeniorProfile returns the cached profile, or false on a miss.
func (s *Store) GetSeniorProfile(ctx context.Context, seniorID string, out any) (bool, error) {
	raw, err := s.rdb.Get(ctx, "senior_profile:"+seniorID).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) SetSeniorProfile(ctx context.Context, seniorID string, profile any) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, "senior_profile:"+seniorID, raw, profileCacheTTL).Err()
}
