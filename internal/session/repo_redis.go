package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisSessionsKey = "callflow:sessions"

// RedisRepo mirrors the snapshot into a Redis hash, one field per call id.
// Same durability bar as the file backend; survives process restarts, not
// Redis restarts without persistence.
type RedisRepo struct {
	rdb *redis.Client
}

func NewRedisRepo(rdb *redis.Client) (*RedisRepo, error) {
	if rdb == nil {
		return nil, errors.New("session: redis client is required")
	}
	return &RedisRepo{rdb: rdb}, nil
}

func (r *RedisRepo) Load(ctx context.Context) (map[string]Session, error) {
	raw, err := r.rdb.HGetAll(ctx, redisSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis load: %w", err)
	}
	out := make(map[string]Session, len(raw))
	for id, payload := range raw {
		var sess Session
		if err := json.Unmarshal([]byte(payload), &sess); err != nil {
			return nil, fmt.Errorf("session: decode %s: %w", id, err)
		}
		out[id] = sess
	}
	return out, nil
}

func (r *RedisRepo) Save(ctx context.Context, sessions map[string]Session) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, redisSessionsKey)
	if len(sessions) > 0 {
		fields := make(map[string]any, len(sessions))
		for id, sess := range sessions {
			payload, err := json.Marshal(sess)
			if err != nil {
				return err
			}
			fields[id] = string(payload)
		}
		pipe.HSet(ctx, redisSessionsKey, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis save: %w", err)
	}
	return nil
}
