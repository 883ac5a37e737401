package flowstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/enftaurus/vidyamitra/pkg/logging"
	"github.com/enftaurus/vidyamitra/pkg/model"
)

// DefaultTTL bounds how long an abandoned cycle is remembered.
const DefaultTTL = 24 * time.Hour

// RedisStore keeps each user's status as JSON under user:<id>:round_flow.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *logging.Logger
}

// NewRedisStore wraps client. A non-positive ttl uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		log:    logging.WithFields(map[string]any{"component": "flowstore"}),
	}
}

func flowKey(userID string) string {
	return "user:" + userID + ":round_flow"
}

// Get returns the stored status. Missing or unreadable entries read as the
// default status; only transport errors are returned.
func (s *RedisStore) Get(ctx context.Context, userID string) (model.StatusMap, error) {
	data, err := s.client.Get(ctx, flowKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.DefaultStatus(), nil
		}
		return nil, errors.Wrap(err, "failed to get round flow")
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.Warn("discarding unreadable round flow", map[string]any{"user_id": userID, "error": err.Error()})
		return model.DefaultStatus(), nil
	}
	status := make(model.StatusMap, len(raw))
	for k, v := range raw {
		status[model.RoundKey(k)] = model.RoundStatus(v)
	}
	return status.Normalize(), nil
}

// Save writes the status and refreshes the TTL.
func (s *RedisStore) Save(ctx context.Context, userID string, status model.StatusMap) error {
	data, err := json.Marshal(status.Normalize())
	if err != nil {
		return errors.Wrap(err, "failed to marshal round flow")
	}
	if err := s.client.Set(ctx, flowKey(userID), data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to save round flow")
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return errors.Wrap(s.client.Ping(ctx).Err(), "failed to ping redis")
}
