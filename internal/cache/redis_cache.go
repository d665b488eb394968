package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func receiptKey(messageID string) string {
	return fmt.Sprintf("msg:%s:receipts", messageID)
}

// StoreDelivered writes the receipt into the message's hash, one field per
// recipient address, and refreshes the hash TTL.
func (c *RedisCache) StoreDelivered(ctx context.Context, messageID, address, remoteMessageID string, sentAt time.Time) error {
	b, err := json.Marshal(Receipt{
		RemoteMessageID: remoteMessageID,
		SentAt:          sentAt.UTC(),
	})
	if err != nil {
		return err
	}

	key := receiptKey(messageID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, address, b)
	pipe.Expire(ctx, key, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Receipts(ctx context.Context, messageID string) (map[string]Receipt, error) {
	raw, err := c.rdb.HGetAll(ctx, receiptKey(messageID)).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]Receipt, len(raw))
	for addr, v := range raw {
		var r Receipt
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("decode receipt for %s: %w", addr, err)
		}
		out[addr] = r
	}
	return out, nil
}
