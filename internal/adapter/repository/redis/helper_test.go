package redis

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
)

// newTestRedisClient starts an in-memory redis for one test. The server is
// stopped by miniredis on cleanup; the client is closed by the caller.
func newTestRedisClient(t *testing.T) (*redislib.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redislib.NewClient(&redislib.Options{
		Addr:     mr.Addr(),
		PoolSize: 4,
		// Lock tests hold a connection while others poll.
		MinIdleConns: 1,
	})

	return client, mr
}
