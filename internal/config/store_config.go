package config

import "strconv"

const (
	redisAddrVar     = "REDIS_ADDR"
	redisPasswordVar = "REDIS_PASSWORD"
	redisDBVar       = "REDIS_DB"
	storeKeyPrefix   = "STORE_KEY_PREFIX"
)

type StoreConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetStoreKeyPrefix() string
}

type Store struct{}

var _ StoreConfig = Store{}

// GetRedisAddr returns the Redis address. Empty means the in-memory store
// backend is used instead.
func (Store) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "")
}

func (Store) GetRedisPassword() string {
	return GetEnv(redisPasswordVar, "")
}

func (Store) GetRedisDB() int {
	db, err := strconv.Atoi(GetEnv(redisDBVar, "0"))
	if err != nil {
		return 0
	}
	return db
}

func (Store) GetStoreKeyPrefix() string {
	return GetEnv(storeKeyPrefix, "signon:")
}
