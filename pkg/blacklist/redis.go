package blacklist

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forge-health/forge-core/pkg/clock"
)

// KeyPrefix keeps blacklist keys interoperable with the main platform.
const KeyPrefix = "forge:token:blacklist:"

// Shared is a Redis-backed blacklist with local fallback. Any shared-store
// error degrades to the local set: availability over strict consistency for
// the revocation check, with a warning logged.
type Shared struct {
	client *redis.Client
	local  *Local
	clock  clock.Clock
	logger *slog.Logger
}

// NewShared connects to the shared store at url and wires the local
// fallback. Ping failures do not fail construction; they degrade.
func NewShared(url string, local *Local, c clock.Clock, logger *slog.Logger) (*Shared, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = clock.Wall
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Shared{
		client: redis.NewClient(opts),
		local:  local,
		clock:  c,
		logger: logger,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		logger.Warn("token blacklist shared store unreachable, degrading to local", "error", err)
	}
	return s, nil
}

func (s *Shared) IsBlacklisted(ctx context.Context, jti string) bool {
	n, err := s.client.Exists(ctx, KeyPrefix+jti).Result()
	if err != nil {
		s.logger.Warn("token blacklist lookup degraded to local", "error", err)
		return s.local.IsBlacklisted(ctx, jti)
	}
	if n > 0 {
		return true
	}
	// The local set may hold revocations added while the shared store was
	// unreachable.
	return s.local.IsBlacklisted(ctx, jti)
}

func (s *Shared) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	now := s.clock.Now()
	ttl := DefaultTTL
	if !expiresAt.IsZero() {
		ttl = expiresAt.Sub(now)
		if ttl <= 0 {
			return nil // already expired
		}
	}
	if err := s.client.SetEx(ctx, KeyPrefix+jti, "1", ttl).Err(); err != nil {
		s.logger.Warn("token blacklist write degraded to local", "error", err)
		return s.local.Add(ctx, jti, expiresAt)
	}
	// Mirror locally so lookups survive a later shared-store outage.
	return s.local.Add(ctx, jti, expiresAt)
}

func (s *Shared) Close() error {
	return s.client.Close()
}
