package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	redisIndexKey     = "echo:turns"
	redisTurnPrefix   = "echo:turn:"
	redisSessionIndex = "echo:session:"
)

// RedisJournal persists ciphertext turns in Redis: one JSON value per turn, a
// sorted set ordered by creation time and a set per session.
type RedisJournal struct {
	client *redis.Client
}

func NewRedisJournal(ctx context.Context, redisURL string) (*RedisJournal, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisJournal{client: client}, nil
}

func (j *RedisJournal) Append(ctx context.Context, t ConversationTurn) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}
	_, err = j.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisTurnPrefix+t.ID, data, 0)
		p.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(t.CreatedAt.UnixNano()), Member: t.ID})
		p.SAdd(ctx, redisSessionIndex+t.SessionID, t.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (j *RedisJournal) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	turns, err := j.fetch(ctx, ids)
	if err != nil {
		return err
	}
	_, err = j.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range ids {
			p.Del(ctx, redisTurnPrefix+id)
			p.ZRem(ctx, redisIndexKey, id)
		}
		for _, t := range turns {
			p.SRem(ctx, redisSessionIndex+t.SessionID, t.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove turns: %w", err)
	}
	return nil
}

func (j *RedisJournal) DeleteSession(ctx context.Context, sessionID string) error {
	ids, err := j.client.SMembers(ctx, redisSessionIndex+sessionID).Result()
	if err != nil {
		return fmt.Errorf("list session turns: %w", err)
	}
	_, err = j.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range ids {
			p.Del(ctx, redisTurnPrefix+id)
			p.ZRem(ctx, redisIndexKey, id)
		}
		p.Del(ctx, redisSessionIndex+sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session turns: %w", err)
	}
	return nil
}

func (j *RedisJournal) DeleteAll(ctx context.Context) error {
	ids, err := j.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list turns: %w", err)
	}
	turns, err := j.fetch(ctx, ids)
	if err != nil {
		return err
	}
	_, err = j.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, t := range turns {
			p.Del(ctx, redisSessionIndex+t.SessionID)
		}
		for _, id := range ids {
			p.Del(ctx, redisTurnPrefix+id)
		}
		p.Del(ctx, redisIndexKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete all turns: %w", err)
	}
	return nil
}

func (j *RedisJournal) Load(ctx context.Context, limit int) ([]ConversationTurn, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	ids, err := j.client.ZRange(ctx, redisIndexKey, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	return j.fetch(ctx, ids)
}

func (j *RedisJournal) fetch(ctx context.Context, ids []string) ([]ConversationTurn, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisTurnPrefix + id
	}
	values, err := j.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("fetch turns: %w", err)
	}
	out := make([]ConversationTurn, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var t ConversationTurn
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (j *RedisJournal) Close() error {
	return j.client.Close()
}
