package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisContainer wraps a Redis client for testing
type RedisContainer struct {
	Client *redis.Client
}

// Close closes the Redis client
func (r *RedisContainer) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// StartRedis creates a Redis client for integration tests.
// Uses REDIS_HOST and REDIS_PORT env vars (set by CI), defaults to localhost:6379.
// The test is skipped in short mode or when nothing answers.
func StartRedis(t *testing.T) *RedisContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", host, port),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available at %s:%s: %v", host, port, err)
	}

	return &RedisContainer{Client: client}
}

// StartPostgres returns a gorm connect url for integration tests.
// Uses POSTGRES_* env vars (set by CI); skipped unless POSTGRES_HOST is set.
func StartPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		t.Skip("POSTGRES_HOST not set")
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	db := os.Getenv("POSTGRES_DB")
	if db == "" {
		db = "terriyaki_test"
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}
	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "postgres"
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, db)
}
