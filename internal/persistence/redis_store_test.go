package persistence

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/dataproduct/journeys/internal/testutil"
)

const prefix = "journeys:test:"

type RedisStoreTestSuite struct {
	suite.Suite
	client *redis.Client
	store  *RedisDefinitionStore
}

func TestRedisTestSuite(t *testing.T) {
	endpoint := testutil.GetRedisAddress(t)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() {
		_ = client.Close()
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis ping failed: %v", err)
	}

	suite.Run(t, &RedisStoreTestSuite{
		client: client,
		store:  NewRedisDefinitionStore(client, prefix),
	})
}

func (r *RedisStoreTestSuite) SetupTest() {
	ctx := context.Background()

	// Clean up all keys with this prefix.
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		err := r.client.Del(ctx, iter.Val()).Err()
		r.NoErrorf(err, "redis DEL %q failed: %v", iter.Val(), err)
	}
	r.NoError(iter.Err(), "redis SCAN failed")
}

func (r *RedisStoreTestSuite) TestDefinitionStoreBehavior() {
	exerciseDefinitionStore(r.T(), r.store)
}

func (r *RedisStoreTestSuite) TestKeysUsePrefix() {
	r.NoError(r.store.SaveDefinition(sampleDocument("visibility", "v1", "fp")))

	n, err := r.client.Exists(context.Background(), prefix+"def:visibility:v1").Result()
	r.NoError(err)
	r.Equal(int64(1), n)
}
