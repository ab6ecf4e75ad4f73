package syncstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/krobus00/rebate-sync/internal/entity"
	"github.com/redis/go-redis/v9"
)

// RedisPersister stores the whole watermark document under a single key.
type RedisPersister struct {
	client redis.Cmdable
	key    string
}

func NewRedisPersister(client redis.Cmdable, key string) (*RedisPersister, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if key == "" {
		return nil, errors.New("redis sync state key is required")
	}

	return &RedisPersister{client: client, key: key}, nil
}

func (p *RedisPersister) Load(ctx context.Context) (entity.SyncStateDocument, error) {
	raw, err := p.client.Get(ctx, p.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entity.SyncStateDocument{}, nil
		}
		return nil, err
	}

	doc := entity.SyncStateDocument{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parse redis key %s: %w", p.key, err)
	}

	return doc, nil
}

func (p *RedisPersister) Save(ctx context.Context, doc entity.SyncStateDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	return p.client.Set(ctx, p.key, payload, 0).Err()
}
