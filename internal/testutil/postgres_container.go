package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgUser     = "journeys"
	pgPassword = "journeys"
	pgDatabase = "journeys_test"
)

func postgresDSN(hostPort string) string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", pgUser, pgPassword, hostPort, pgDatabase)
}

var postgresService = &service{
	name:  "postgres",
	image: "postgres:16",
	opts: []testcontainers.ContainerCustomizer{
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     pgUser,
			"POSTGRES_PASSWORD": pgPassword,
			"POSTGRES_DB":       pgDatabase,
		}),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				// The server logs readiness twice during init; a query is the
				// only reliable signal.
				wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return postgresDSN(host + ":" + port.Port())
				}).WithQuery("SELECT 1"),
			).WithDeadline(2 * time.Minute),
		),
	},
	endpoint: postgresDSN,
}

// GetPostgresDSN returns a pgx connection string for a shared PostgreSQL
// container.
func GetPostgresDSN(t *testing.T) string {
	t.Helper()
	return postgresService.get(t)
}
