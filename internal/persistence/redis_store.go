package persistence

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dataproduct/journeys/pkg/api"
)

// RedisDefinitionStore is a DefinitionStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>def:<name>:<version>  => JSON document
//	<prefix>versions:<name>       => ZSET of versions scored by save sequence
//	<prefix>names                 => SET of journey names
//	<prefix>seq                   => save sequence counter
type RedisDefinitionStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

var _ DefinitionStore = (*RedisDefinitionStore)(nil)

// NewRedisDefinitionStore creates a RedisDefinitionStore.
// prefix is optional but recommended (e.g. "journeys:").
func NewRedisDefinitionStore(client *redis.Client, prefix string) *RedisDefinitionStore {
	if prefix == "" {
		prefix = "journeys:"
	}
	return &RedisDefinitionStore{
		client:  client,
		prefix:  prefix,
		timeout: 5 * time.Second,
	}
}

func (s *RedisDefinitionStore) keyDoc(name, version string) string {
	return s.prefix + "def:" + name + ":" + version
}

func (s *RedisDefinitionStore) keyVersions(name string) string {
	return s.prefix + "versions:" + name
}

func (s *RedisDefinitionStore) keyNames() string {
	return s.prefix + "names"
}

func (s *RedisDefinitionStore) keySeq() string {
	return s.prefix + "seq"
}

func (s *RedisDefinitionStore) SaveDefinition(doc api.Document) error {
	doc.Version = versionOrDefault(doc.Version)
	data, err := EncodeDocument(doc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	seq, err := s.client.Incr(ctx, s.keySeq()).Result()
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyDoc(doc.Name, doc.Version), data, 0)
	pipe.ZAdd(ctx, s.keyVersions(doc.Name), redis.Z{Score: float64(seq), Member: doc.Version})
	pipe.SAdd(ctx, s.keyNames(), doc.Name)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisDefinitionStore) GetDefinition(name, version string) (api.Document, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.keyDoc(name, versionOrDefault(version))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return api.Document{}, ErrDefinitionNotFound
		}
		return api.Document{}, err
	}
	return DecodeDocument(data)
}

func (s *RedisDefinitionStore) GetLatestDefinition(name string) (api.Document, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	latest, err := s.client.ZRevRange(ctx, s.keyVersions(name), 0, 0).Result()
	if err != nil {
		return api.Document{}, err
	}
	if len(latest) == 0 {
		return api.Document{}, ErrDefinitionNotFound
	}
	return s.GetDefinition(name, latest[0])
}

func (s *RedisDefinitionStore) ListDefinitionVersions(name string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	return s.client.ZRange(ctx, s.keyVersions(name), 0, -1).Result()
}

func (s *RedisDefinitionStore) ListDefinitionNames() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	names, err := s.client.SMembers(ctx, s.keyNames()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
