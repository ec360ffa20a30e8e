// Package redistest starts a throwaway Redis container for integration tests.
package redistest

import (
	"context"
	"net"
	"os"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// EnvIntegration must be "1" for container-backed tests to run.
const EnvIntegration = "OTP_INTEGRATION"

// New returns a client for a fresh Redis container, or skips the test when
// integration tests are disabled.
func New(t *testing.T) *redis.Client {
	t.Helper()

	if os.Getenv(EnvIntegration) != "1" {
		t.Skipf("set %s=1 to run redis integration tests", EnvIntegration)
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, nat.Port("6379/tcp"))
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: net.JoinHostPort(host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
	return client
}
