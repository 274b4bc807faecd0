package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
	relayerrors "github.com/EthanQC/relay/services/relay_service/pkg/errors"
)

// DefaultKeyPrefix 在线状态 key 前缀
const DefaultKeyPrefix = "user:status:"

// PresenceStoreRedis Redis 在线状态存储，每个用户一个 JSON 字符串
type PresenceStoreRedis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // 0 表示不过期
}

func NewPresenceStoreRedis(client *redis.Client, prefix string, ttl time.Duration) out.PresenceStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &PresenceStoreRedis{client: client, prefix: prefix, ttl: ttl}
}

func (r *PresenceStoreRedis) getKey(userID entity.UserID) string {
	return r.prefix + string(userID)
}

func (r *PresenceStoreRedis) Get(ctx context.Context, userID entity.UserID) (*entity.PresenceRecord, error) {
	key := r.getKey(userID)
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, relayerrors.ErrPresenceNotFound
		}
		return nil, &relayerrors.StoreError{Op: "get", Key: key, Err: err}
	}

	var record entity.PresenceRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, &relayerrors.StoreError{Op: "get", Key: key, Err: err}
	}
	return &record, nil
}

func (r *PresenceStoreRedis) Set(ctx context.Context, userID entity.UserID, record *entity.PresenceRecord) error {
	key := r.getKey(userID)
	data, err := json.Marshal(record)
	if err != nil {
		return &relayerrors.StoreError{Op: "set", Key: key, Err: err}
	}
	if err := r.client.Set(ctx, key, string(data), r.ttl).Err(); err != nil {
		return &relayerrors.StoreError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (r *PresenceStoreRedis) Delete(ctx context.Context, userID entity.UserID) error {
	key := r.getKey(userID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return &relayerrors.StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (r *PresenceStoreRedis) Close() error {
	return r.client.Close()
}
