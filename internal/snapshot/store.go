package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/urbansight/shadow-engine/core"
)

// ErrNotFound indicates no snapshot exists under the requested key.
var ErrNotFound = errors.New("snapshot not found")

const (
	defaultPrefix = "shadow:scene:"
	// DefaultTTL keeps cached scenes for a day; providers regenerate them
	// on demand.
	DefaultTTL = 24 * time.Hour
)

// Store caches encoded scene snapshots in Redis so repeated sessions over the
// same area skip mesh regeneration.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Option customises Store construction.
type Option func(*Store)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL overrides the snapshot expiry; zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// NewStore wraps an existing Redis client.
func NewStore(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// BoundsKey derives a stable cache key from the query area: centre point and
// radius in metres, truncated to a resolution where nearby sessions share a
// scene.
func BoundsKey(lat, lon, radiusMeters float64) string {
	payload := fmt.Sprintf("%.4f:%.4f:%.0f", lat, lon, radiusMeters)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}

// Save encodes and stores a snapshot under key.
func (s *Store) Save(ctx context.Context, key string, snap *core.SceneSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil scene snapshot")
	}
	var buf bytes.Buffer
	if err := snap.Encode(&buf); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, buf.Bytes(), s.ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot %s: %w", key, err)
	}
	return nil
}

// Load fetches and decodes the snapshot stored under key.
func (s *Store) Load(ctx context.Context, key string) (*core.SceneSnapshot, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	snap, err := core.DecodeSceneSnapshot(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode cached snapshot %s: %w", key, err)
	}
	return snap, nil
}

// Exists reports whether a snapshot is cached under key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check snapshot %s: %w", key, err)
	}
	return n > 0, nil
}

// Delete drops the snapshot stored under key. Deleting a missing key is not
// an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}
