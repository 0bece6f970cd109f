package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"market-matrix/internal/position"
)

// stateKey holds the whole state document as one JSON blob so that a save
// stays all-or-nothing, matching the file backend's semantics.
const stateKey = "matrix:paper:state"

// stateTTL keeps abandoned state from living forever. Positions close within
// hours or days; anything this old is stale.
const stateTTL = 30 * 24 * time.Hour

// RedisStore persists state in Redis for deployments where more than one
// host needs to see the same paper book.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr string, db int, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		logger: logger.With().Str("component", "redis_store").Logger(),
	}, nil
}

// Load reads the state document. A missing key yields a fresh empty state;
// an undecodable value is ErrCorruptState.
func (s *RedisStore) Load(ctx context.Context) (*position.State, error) {
	data, err := s.client.Get(ctx, stateKey).Bytes()
	if err == redis.Nil {
		s.logger.Info().Msg("no state in redis, starting fresh")
		return position.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state from redis: %w", err)
	}

	var state position.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	state.Normalize()
	return &state, nil
}

// Save replaces the state document in one SET.
func (s *RedisStore) Save(ctx context.Context, state *position.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey, data, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to save state to redis: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
