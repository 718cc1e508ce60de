package router

import (
	"net"
	"strconv"

	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/MediaDash/internal/pkg/cache"
	"github.com/ManuelReschke/MediaDash/internal/pkg/env"
)

// NewLimiterStorage returns redis storage for the API rate limiter so limits
// hold across instances. It uses RATE_LIMIT_CACHE_DB (default 2) of the cache
// server.
func NewLimiterStorage() *redis.Storage {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnvInt("CACHE_PORT", 6379)
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: env.GetEnvInt("RATE_LIMIT_CACHE_DB", 2),
		Reset:    false,
	})
}
