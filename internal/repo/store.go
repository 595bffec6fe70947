package repo

import (
	"context"
	"fmt"
	"os"

	"github.com/shaiso/Taskflow/internal/engine"
)

// Типы хранилищ (TASKFLOW_STORE).
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
)

// Config — выбор и параметры хранилища flows.
type Config struct {
	Kind        string // file | postgres | sqlite | redis
	FilePath    string // для file
	SQLitePath  string // для sqlite
	RedisPrefix string // для redis
}

// ConfigFromEnv читает TASKFLOW_STORE, TASKFLOW_FILE, SQLITE_PATH, TASKFLOW_REDIS_PREFIX.
// DB_URL читается в NewPool, REDIS_URL в NewRedisClient.
func ConfigFromEnv() Config {
	cfg := Config{
		Kind:        os.Getenv("TASKFLOW_STORE"),
		FilePath:    os.Getenv("TASKFLOW_FILE"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
		RedisPrefix: os.Getenv("TASKFLOW_REDIS_PREFIX"),
	}
	if cfg.Kind == "" {
		cfg.Kind = StoreFile
	}
	if cfg.FilePath == "" {
		cfg.FilePath = "flows.json"
	}
	return cfg
}

// Open открывает хранилище по конфигурации.
// Возвращаемая функция закрывает соединения хранилища.
func Open(ctx context.Context, cfg Config) (engine.Store, func(), error) {
	switch cfg.Kind {
	case StoreFile, "":
		return NewFileStore(cfg.FilePath), func() {}, nil

	case StorePostgres:
		pool, err := NewPool(ctx)
		if err != nil {
			return nil, nil, err
		}
		store := NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	case StoreSQLite:
		db, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store, err := NewSQLiteStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil

	case StoreRedis:
		client, err := NewRedisClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisStore(client, cfg.RedisPrefix), func() { client.Close() }, nil
	}

	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.Kind)
}
