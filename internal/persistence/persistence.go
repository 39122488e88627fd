package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"
)

// Backend names a DefinitionStore implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendMongo    Backend = "mongo"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendMemory, BackendSQLite, BackendPostgres, BackendRedis, BackendMongo:
		return b, nil
	case "":
		return BackendMemory, nil
	default:
		return "", fmt.Errorf("unknown store backend %q", s)
	}
}

// Open connects to the given backend and returns a DefinitionStore together
// with a function releasing the underlying connection.
//
// dsn is a file name or URI for sqlite, a connection string for postgres, a
// redis:// URL for redis and a mongodb:// URI for mongo. It is ignored for the
// memory backend.
func Open(ctx context.Context, backend Backend, dsn string) (DefinitionStore, func() error, error) {
	noop := func() error { return nil }

	switch backend {
	case BackendMemory, "":
		return NewInMemoryStore(), noop, nil

	case BackendSQLite:
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, nil, err
		}
		store, err := NewSQLiteDefinitionStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil

	case BackendPostgres:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		store, err := NewPostgresDefinitionStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil

	case BackendRedis:
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return NewRedisDefinitionStore(client, ""), client.Close, nil

	case BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(dsn))
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() error { return client.Disconnect(context.Background()) }
		if err := client.Ping(ctx, nil); err != nil {
			_ = closeFn()
			return nil, nil, err
		}
		return NewMongoDefinitionStore(client, "", ""), closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
