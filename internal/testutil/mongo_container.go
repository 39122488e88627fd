package testutil

import (
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var mongoService = &service{
	name:  "mongo",
	image: "mongo:7",
	opts: []testcontainers.ContainerCustomizer{
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp"),
			wait.ForLog("mongod startup complete"),
		),
	},
	endpoint: func(hostPort string) string { return "mongodb://" + hostPort },
}

// GetMongoURI returns the mongodb:// URI of a shared MongoDB container.
func GetMongoURI(t *testing.T) string {
	t.Helper()
	return mongoService.get(t)
}
