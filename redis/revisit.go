// Package redis implements egress storage interfaces on Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/egress"
	"github.com/redis/go-redis/v9"
)

const revisitKeyPrefix = "revisit:"

var _ egress.RevisitStore = (*RevisitStore)(nil)

// RevisitStore keeps revisit records in Redis, one key per URL. Keys
// expire a retention period after the record is saved, so stale URLs
// clean themselves up.
type RevisitStore struct {
	client    redis.Cmdable
	retention time.Duration
}

// Option configures a RevisitStore.
type Option func(*RevisitStore)

// WithRetention sets a fixed key expiry instead of twice the record TTL.
func WithRetention(d time.Duration) Option {
	return func(s *RevisitStore) {
		s.retention = d
	}
}

// NewRevisitStore creates a RevisitStore on client.
func NewRevisitStore(client redis.Cmdable, opts ...Option) *RevisitStore {
	s := &RevisitStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the Redis key holding the record of url.
func Key(url string) string {
	return revisitKeyPrefix + strconv.FormatUint(xxhash.Sum64String(url), 16)
}

// FindRevisit returns the record for url.
func (s *RevisitStore) FindRevisit(ctx context.Context, url string) (*egress.RevisitInfo, error) {
	data, err := s.client.Get(ctx, Key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, egress.Errorf(egress.ENOTFOUND, "no revisit record for %s", url)
	}
	if err != nil {
		return nil, egress.Wrapf(err, egress.EUNAVAILABLE, "redis get")
	}

	var info egress.RevisitInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, egress.Wrapf(err, egress.EINTERNAL, "decoding revisit record")
	}
	// Two URLs can share a 64-bit key.
	if info.URL != url {
		return nil, egress.Errorf(egress.ENOTFOUND, "no revisit record for %s", url)
	}
	return &info, nil
}

// SaveRevisit stores info with SETEX.
func (s *RevisitStore) SaveRevisit(ctx context.Context, info *egress.RevisitInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(info)
	if err != nil {
		return egress.Wrapf(err, egress.EINTERNAL, "encoding revisit record")
	}

	expiry := s.retention
	if expiry <= 0 {
		expiry = 2 * info.TTL
	}
	if expiry <= 0 {
		err = s.client.Set(ctx, Key(info.URL), data, 0).Err()
	} else {
		err = s.client.SetEx(ctx, Key(info.URL), data, expiry).Err()
	}
	if err != nil {
		return egress.Wrapf(err, egress.EUNAVAILABLE, "redis set")
	}
	return nil
}

// DeleteRevisit removes the record for url.
func (s *RevisitStore) DeleteRevisit(ctx context.Context, url string) error {
	if err := s.client.Del(ctx, Key(url)).Err(); err != nil {
		return egress.Wrapf(err, egress.EUNAVAILABLE, "redis del")
	}
	return nil
}
