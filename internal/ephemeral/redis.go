package ephemeral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/scenario-chat/internal/domain"
)

const keyPrefix = "scenariochat:"

// RedisStore shares ephemeral state between replicas. Values are JSON
// documents that expire after ttl.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects and pings the server.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: rdb, ttl: ttl}, nil
}

func convKey(id string) string       { return keyPrefix + "conv:" + id }
func ownerKey(ownerID string) string { return keyPrefix + "owner:" + ownerID }
func expKey(userID string) string    { return keyPrefix + "groups:" + userID }

func (s *RedisStore) PutConversation(ctx context.Context, c *Conversation) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, convKey(c.ID), raw, s.ttl)
		p.SAdd(ctx, ownerKey(c.OwnerID), c.ID)
		p.Expire(ctx, ownerKey(c.OwnerID), s.ttl)
		return nil
	})
	return err
}

func (s *RedisStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	raw, err := s.client.Get(ctx, convKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var c Conversation
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns ownerID's demo conversations, newest first.
// Index entries whose conversation expired are pruned on the way.
func (s *RedisStore) ListConversations(ctx context.Context, ownerID string) ([]*Conversation, error) {
	ids, err := s.client.SMembers(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		return nil, err
	}
	var out []*Conversation
	for _, id := range ids {
		c, err := s.GetConversation(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.client.SRem(ctx, ownerKey(ownerID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sortNewestFirst(out)
	return out, nil
}

// update applies fn to the stored conversation under optimistic locking.
func (s *RedisStore) update(ctx context.Context, id string, fn func(*Conversation)) error {
	key := convKey(id)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var c Conversation
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
		fn(&c)
		next, err := json.Marshal(&c)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, next, s.ttl)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) AppendMessages(ctx context.Context, id string, msgs ...domain.Message) error {
	return s.update(ctx, id, func(c *Conversation) { c.Messages = append(c.Messages, msgs...) })
}

func (s *RedisStore) SetMessageStatus(ctx context.Context, id, messageID string, status domain.MessageStatus) error {
	return s.update(ctx, id, func(c *Conversation) { c.setStatus(messageID, status) })
}

func (s *RedisStore) ClearMessages(ctx context.Context, id string) error {
	return s.update(ctx, id, func(c *Conversation) { c.Messages = nil })
}

func (s *RedisStore) Expansion(ctx context.Context, userID string) (map[string]bool, error) {
	out := map[string]bool{}
	raw, err := s.client.Get(ctx, expKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RedisStore) SaveExpansion(ctx context.Context, userID string, state map[string]bool) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, expKey(userID), raw, s.ttl).Err()
}

func (s *RedisStore) Close() error { return s.client.Close() }
