package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisLockPrefix = "mmk-jobs:testutil:db_lock:"

// SetupTestRedis returns a client on a reserved, flushed logical DB. The address comes
// from REDIS_ADDR, then redis:6379, localhost:6379 and the local test port 56379.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr, ok := findTestRedis()
	if !ok {
		if requireRedis() {
			t.Fatal("redis not available for testing")
		}
		t.Skip("redis not available for testing")
	}

	db := reserveRedisDB(t, addr)
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		closeQuietly(t, "redis client", client)
		t.Fatalf("flush redis db %d at %s: %v", db, addr, err)
	}
	onCleanup(t, func() { closeQuietly(t, "redis client", client) })
	return client
}

func findTestRedis() (string, bool) {
	candidates := []string{"redis:6379", "localhost:6379", "localhost:56379"}
	if env := os.Getenv("REDIS_ADDR"); env != "" {
		candidates = []string{env}
	}
	for _, addr := range candidates {
		if pingRedis(addr) {
			return addr, true
		}
	}
	return "", false
}

func pingRedis(addr string) bool {
	c := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = c.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Ping(ctx).Err() == nil
}

// reserveRedisDB picks a logical DB so parallel test packages do not flush each other.
// TEST_REDIS_DB wins; otherwise a lock key in DB 0 claims one of 1..15.
func reserveRedisDB(t TestingTB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("ignoring invalid TEST_REDIS_DB=%q", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr})
	defer closeQuietly(t, "redis meta client", meta)

	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for i := 1; i <= 15; i++ {
		key := redisLockPrefix + strconv.Itoa(i)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok, err := meta.SetNX(ctx, key, owner, 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		onCleanup(t, func() { releaseRedisLock(t, addr, key) })
		return i
	}
	t.Logf("no free redis db at %s; using db 1", addr)
	return 1
}

func releaseRedisLock(t TestingTB, addr, key string) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	defer closeQuietly(t, "redis cleanup client", c)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Del(ctx, key).Err(); err != nil {
		t.Logf("release redis lock %s: %v", key, err)
	}
}
