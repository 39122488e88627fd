// Package testutil starts throw-away backing services for integration tests.
// Each container is started at most once per test binary and removed by the
// testcontainers reaper when the binary exits. Tests are skipped when Docker
// is not available.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

const startTimeout = 3 * time.Minute

// service is a lazily started container shared by every test in a binary.
type service struct {
	name  string
	image string
	opts  []testcontainers.ContainerCustomizer
	// endpoint turns the container's host:port into what tests connect with.
	endpoint func(hostPort string) string

	once sync.Once
	addr string
	err  error
}

func (s *service) start() {
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()

		c, err := testcontainers.Run(ctx, s.image, s.opts...)
		if err != nil {
			s.err = err
			return
		}
		hostPort, err := c.Endpoint(ctx, "")
		if err != nil {
			_ = c.Terminate(context.Background())
			s.err = err
			return
		}
		s.addr = s.endpoint(hostPort)
	})
}

// get returns the service endpoint, skipping t when it cannot be started.
func (s *service) get(t *testing.T) string {
	t.Helper()
	SkipIntegration(t)
	s.start()
	if s.err != nil {
		t.Skipf("%s container unavailable: %v", s.name, s.err)
	}
	return s.addr
}

// SkipIntegration skips t when JOURNEYS_SKIP_INTEGRATION is set or when
// running with -short.
func SkipIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() || os.Getenv("JOURNEYS_SKIP_INTEGRATION") != "" {
		t.Skip("integration tests disabled")
	}
}
