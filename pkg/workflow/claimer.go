package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Claimer gives one worker at a time the right to execute a run. The claim
// expires after ttl if it is never released.
type Claimer interface {
	TryClaim(ctx context.Context, runID string, ttl time.Duration) (release func(), claimed bool, err error)
}

// MemoryClaimer claims runs within a single process.
type MemoryClaimer struct {
	mu     sync.Mutex
	claims map[string]memoryClaim
	now    func() time.Time
}

type memoryClaim struct {
	token   string
	expires time.Time
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{
		claims: make(map[string]memoryClaim),
		now:    time.Now,
	}
}

func (c *MemoryClaimer) TryClaim(_ context.Context, runID string, ttl time.Duration) (func(), bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if existing, ok := c.claims[runID]; ok && now.Before(existing.expires) {
		return nil, false, nil
	}

	token := uuid.NewString()
	c.claims[runID] = memoryClaim{token: token, expires: now.Add(ttl)}

	release := func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if current, ok := c.claims[runID]; ok && current.token == token {
			delete(c.claims, runID)
		}
	}

	return release, true, nil
}

// releaseScript deletes the key only while it still holds our token, so an
// expired claim taken over by another worker is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClaimer claims runs across processes with SET NX leases.
type RedisClaimer struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

func NewRedisClaimer(client redis.UniversalClient, logger *slog.Logger) *RedisClaimer {
	return &RedisClaimer{
		client: client,
		prefix: "sequences:run-claim:",
		logger: logger.With("module", "run_claimer"),
	}
}

// NewRedisClaimerFromURL connects to the redis server at url, as accepted by
// redis.ParseURL.
func NewRedisClaimerFromURL(ctx context.Context, url string, logger *slog.Logger) (*RedisClaimer, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisClaimer(client, logger), nil
}

func (c *RedisClaimer) TryClaim(ctx context.Context, runID string, ttl time.Duration) (func(), bool, error) {
	key := c.prefix + runID
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim run %s: %w", runID, err)
	}

	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := releaseScript.Run(ctx, c.client, []string{key}, token).Err()
		if err != nil {
			c.logger.Warn("failed to release run claim", "run_id", runID, "error", err)
		}
	}

	return release, true, nil
}

func (c *RedisClaimer) Close() error {
	return c.client.Close()
}
