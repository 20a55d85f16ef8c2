// Package testutil starts throwaway backing services for integration tests.
// Tests using it are skipped under -short.
package testutil

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	redisCtxTimeout           = 10 * time.Second
	redisStartupTimeout       = 60 * time.Second
	redisTerminateTimeout     = 5 * time.Second
	redisContainerMemoryLimit = 128 * 1024 * 1024
	redisTestPoolSize         = 10
)

var (
	redisOnce sync.Once
	redisAddr string
	redisCont testcontainers.Container
	errRedis  error
)

// sharedRedisAddr starts one Redis container per test binary.
func sharedRedisAddr(ctx context.Context) (string, error) {
	redisOnce.Do(func() {
		req := testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			HostConfigModifier: func(hc *container.HostConfig) {
				hc.Memory = redisContainerMemoryLimit
				hc.MemorySwap = redisContainerMemoryLimit
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready to accept connections").WithStartupTimeout(redisStartupTimeout),
				wait.ForListeningPort("6379/tcp").WithStartupTimeout(redisStartupTimeout),
			),
		}

		cont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			errRedis = fmt.Errorf("failed to start Redis container: %w", err)
			return
		}

		host, err := cont.Host(ctx)
		if err != nil {
			errRedis = fmt.Errorf("failed to get container host: %w", err)
			return
		}
		port, err := cont.MappedPort(ctx, "6379")
		if err != nil {
			errRedis = fmt.Errorf("failed to get container port: %w", err)
			return
		}

		redisCont = cont
		redisAddr = net.JoinHostPort(host, port.Port())
	})

	return redisAddr, errRedis
}

// SetupTestRedis returns a client for the shared Redis container and a key
// prefix unique to the test.
func SetupTestRedis(t *testing.T) (*redis.Client, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisStartupTimeout)
	defer cancel()

	addr, err := sharedRedisAddr(ctx)
	if err != nil {
		t.Fatalf("Failed to get shared Redis container: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: redisTestPoolSize,
	})

	pingCtx, pingCancel := context.WithTimeout(context.Background(), redisCtxTimeout)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Fatalf("Failed to ping Redis: %v", err)
	}

	prefix := fmt.Sprintf("test:%s:", t.Name())

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), redisCtxTimeout)
		defer cleanupCancel()
		iter := client.Scan(cleanupCtx, 0, prefix+"*", 0).Iterator()
		for iter.Next(cleanupCtx) {
			_ = client.Del(cleanupCtx, iter.Val()).Err()
		}
		_ = client.Close()
	})

	return client, prefix
}

// TerminateRedis stops the shared container. Call it from TestMain.
func TerminateRedis() {
	if redisCont == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTerminateTimeout)
	defer cancel()
	_ = redisCont.Terminate(ctx)
}
