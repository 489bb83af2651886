package config

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

// GetRedisDB returns nil until ConnectRedisWithRetry succeeded; callers must treat Redis as optional.
func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

// SetRedisClient wires an already connected client (tests, CLI tools).
func SetRedisClient(client *redis.Client) {
	rdb = client
	if client == nil {
		locker = nil
		return
	}
	locker = redislock.New(client)
}

// ConnectRedisWithRetry connects and sets the global Redis client + lock client.
// Gives up after REDIS_CONNECT_ATTEMPTS (default 5) so the service can run without Redis.
func ConnectRedisWithRetry(ctx context.Context) {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
		log.Printf("REDIS_ADDRESS not set; defaulting to %s", redisAddr)
	}
	maxAttempts := intFromEnv("REDIS_CONNECT_ATTEMPTS", 5)

	var attempt int
	for {
		attempt++
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
			PoolSize: 100,
		})
		err := client.Ping(ctx).Err()
		if err == nil {
			SetRedisClient(client)
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, redisAddr)
			return
		}
		_ = client.Close()
		if maxAttempts > 0 && attempt >= maxAttempts {
			log.Printf("redis unavailable after %d attempts (addr=%s): %v; continuing without redis", attempt, redisAddr, err)
			return
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, redisAddr, err, sleep)
		time.Sleep(sleep)
	}
}

// GetRedisValue returns ("", false, nil) for a missing key or when Redis is not connected.
func GetRedisValue(ctx context.Context, key string) (string, bool, error) {
	if rdb == nil {
		return "", false, nil
	}
	val, err := rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func SetRedisValue(ctx context.Context, key string, value string, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	return rdb.Set(ctx, key, value, exp).Err()
}

// SetRedisValueNX only writes when the key is absent.
func SetRedisValueNX(ctx context.Context, key string, value string) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	return rdb.SetNX(ctx, key, value, 0).Result()
}

func RemoveRedisKey(ctx context.Context, keys ...string) error {
	if rdb == nil {
		return nil
	}
	_, err := rdb.Del(ctx, keys...).Result()
	return err
}

// IncrRedisCounter adds one and returns the new value.
func IncrRedisCounter(ctx context.Context, key string) (int64, error) {
	if rdb == nil {
		return 0, errors.New("redis not connected")
	}
	return rdb.Incr(ctx, key).Result()
}
