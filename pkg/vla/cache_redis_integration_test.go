package vla

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testRedisClient    *redis.Client
	testRedisContainer testcontainers.Container
	skipIntegration    bool
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		}
		testRedisContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()

	if containerErr != nil {
		fmt.Printf("Docker not available, integration tests will be skipped: %v\n", containerErr)
		skipIntegration = true
	} else {
		host, err := testRedisContainer.Host(ctx)
		if err != nil {
			fmt.Printf("failed to get container host: %v\n", err)
			skipIntegration = true
		} else {
			port, err := testRedisContainer.MappedPort(ctx, "6379")
			if err != nil {
				fmt.Printf("failed to get container port: %v\n", err)
				skipIntegration = true
			} else {
				testRedisClient = redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
				if err := testRedisClient.Ping(ctx).Err(); err != nil {
					fmt.Printf("failed to ping redis: %v\n", err)
					skipIntegration = true
				}
			}
		}
	}

	code := m.Run()

	if testRedisClient != nil {
		_ = testRedisClient.Close()
	}
	if testRedisContainer != nil {
		_ = testRedisContainer.Terminate(ctx)
	}

	os.Exit(code)
}

// getRedis returns the shared Redis client, flushed for test isolation, or
// skips the test when Docker is unavailable.
func getRedis(t *testing.T) *redis.Client {
	t.Helper()
	if skipIntegration {
		t.Skip("Docker not available, skipping integration test")
	}
	require.NoError(t, testRedisClient.FlushDB(context.Background()).Err())
	return testRedisClient
}

func TestRedisCacheSetGetRoundTrip(t *testing.T) {
	rdb := getRedis(t)
	cache := NewRedisCache(rdb)

	resp := Response{
		Status:      StatusOK,
		Action:      Action{Type: ActionContinuous, U: []float64{0.2, -0.4}},
		Confidence:  0.83,
		Explanation: "integration round trip",
		Model:       ModelInfo{Name: "rt2-stub", Version: "v1"},
		Stats:       map[string]float64{"latency_ms": 12.5},
	}

	cache.Set(42, resp, time.Minute)

	got, ok := cache.Get(42)
	require.True(t, ok)
	assert.Equal(t, resp.Status, got.Status)
	assert.Equal(t, resp.Action, got.Action)
	assert.Equal(t, resp.Confidence, got.Confidence)
	assert.Equal(t, resp.Model, got.Model)
	assert.Equal(t, resp.Stats, got.Stats)
}

func TestRedisCacheMissReturnsFalse(t *testing.T) {
	rdb := getRedis(t)
	cache := NewRedisCache(rdb)

	_, ok := cache.Get(9999)
	assert.False(t, ok)
}

func TestRedisCacheEntryExpiresAfterTTL(t *testing.T) {
	rdb := getRedis(t)
	cache := NewRedisCache(rdb)

	cache.Set(7, Response{Status: StatusOK}, 50*time.Millisecond)
	_, ok := cache.Get(7)
	require.True(t, ok)

	time.Sleep(200 * time.Millisecond)
	_, ok = cache.Get(7)
	assert.False(t, ok, "entry must expire once its TTL elapses, matching Redis's own TTL-driven eviction")
}

func TestRedisCacheLenReportsUnknown(t *testing.T) {
	rdb := getRedis(t)
	cache := NewRedisCache(rdb)
	assert.Equal(t, -1, cache.Len())
}
