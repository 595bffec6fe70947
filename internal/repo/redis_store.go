package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Taskflow/internal/domain"
	"github.com/shaiso/Taskflow/internal/engine"
)

var _ engine.Store = (*RedisStore)(nil)

// DefaultRedisPrefix — префикс ключей RedisStore по умолчанию.
const DefaultRedisPrefix = "taskflow:"

// RedisStore хранит flows в одном hash:
//
//	<prefix>flows => HASH flowID -> JSON документ flow
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore создаёт RedisStore. Пустой prefix заменяется DefaultRedisPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) keyFlows() string {
	return s.prefix + "flows"
}

// SaveDocument заменяет hash flows содержимым документа в одной транзакции.
func (s *RedisStore) SaveDocument(ctx context.Context, doc domain.ManagerDocument) error {
	fields := make(map[string]any, len(doc.Flows))
	for _, fd := range doc.Flows {
		data, err := json.Marshal(fd)
		if err != nil {
			return fmt.Errorf("marshal flow %s: %w", fd.FlowID, err)
		}
		fields[fd.FlowID] = data
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.keyFlows())
	if len(fields) > 0 {
		pipe.HSet(ctx, s.keyFlows(), fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save flows: %w", err)
	}
	return nil
}

// LoadDocument читает все flows в порядке flowID.
func (s *RedisStore) LoadDocument(ctx context.Context) (domain.ManagerDocument, error) {
	raw, err := s.client.HGetAll(ctx, s.keyFlows()).Result()
	if err != nil {
		return domain.ManagerDocument{}, fmt.Errorf("list flows: %w", err)
	}

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	doc := domain.ManagerDocument{Flows: make([]domain.FlowDocument, 0, len(ids))}
	for _, id := range ids {
		fd, err := decodeFlow(id, []byte(raw[id]))
		if err != nil {
			return domain.ManagerDocument{}, err
		}
		doc.Flows = append(doc.Flows, fd)
	}

	doc.FlowCount = len(doc.Flows)
	return doc, nil
}

// NewRedisClient создаёт клиент Redis из REDIS_URL и проверяет соединение.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
