package config

import (
	"os"
	"strings"
)

func envTrue(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// UseRedisPostingLock serializes postings across service instances with a Redis lock
// in addition to the database row locks.
//
// Set via env:
// - POSTING_REDIS_LOCK=true
func UseRedisPostingLock() bool {
	return envTrue("POSTING_REDIS_LOCK")
}

// UseRedisDocNumbers hands out document numbers from Redis counters instead of the
// transaction_number_series table.
//
// Set via env:
// - DOC_NUMBERS_REDIS=true
func UseRedisDocNumbers() bool {
	return envTrue("DOC_NUMBERS_REDIS")
}

// DebugPosting enables verbose posting logs.
//
// Set via env:
// - DEBUG_POSTING=true
func DebugPosting() bool {
	return envTrue("DEBUG_POSTING")
}

// SettingFromEnv returns the env override for a settings key.
// "inventory.low_stock_default" is read from SETTING_INVENTORY_LOW_STOCK_DEFAULT.
func SettingFromEnv(key string) (string, bool) {
	name := "SETTING_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	v, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}
