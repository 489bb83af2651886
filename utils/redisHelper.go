package utils

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/mmdatafocus/pharmacy_backend/config"
)

const settingCachePrefix = "Setting:"

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN_MINUTES"))
	if err != nil || lifespan <= 0 {
		lifespan = 5
	}
	return time.Duration(lifespan) * time.Minute
}

// RetrieveCachedSetting returns a settings value cached in Redis.
// A Redis failure is reported as a miss so callers fall through to the database.
func RetrieveCachedSetting(ctx context.Context, key string) (string, bool) {
	val, ok, err := config.GetRedisValue(ctx, settingCachePrefix+key)
	if err != nil {
		config.LogError(config.GetLogger(), "utils", "RetrieveCachedSetting", "redis get", key, err)
		return "", false
	}
	return val, ok
}

func StoreCachedSetting(ctx context.Context, key string, value string) {
	if err := config.SetRedisValue(ctx, settingCachePrefix+key, value, GetCacheLifespan()); err != nil {
		config.LogError(config.GetLogger(), "utils", "StoreCachedSetting", "redis set", key, err)
	}
}

func ClearCachedSetting(ctx context.Context, key string) error {
	return config.RemoveRedisKey(ctx, settingCachePrefix+key)
}
