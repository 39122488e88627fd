package testutil

import (
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var redisService = &service{
	name:  "redis",
	image: "redis:7",
	opts: []testcontainers.ContainerCustomizer{
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("6379/tcp"),
			wait.ForLog("Ready to accept connections"),
		),
	},
	endpoint: func(hostPort string) string { return hostPort },
}

// GetRedisAddress returns the host:port of a shared Redis container.
func GetRedisAddress(t *testing.T) string {
	t.Helper()
	return redisService.get(t)
}

// GetRedisURL returns a redis:// URL for the shared container, the form
// accepted by persistence.Open and journeys.OpenOutbox.
func GetRedisURL(t *testing.T) string {
	t.Helper()
	return "redis://" + redisService.get(t)
}
