// Package cache содержит кэш котировок золота.
package cache

import "time"

// RateCache определяет контракт кэша котировок.
type RateCache interface {
	Get(key string) (string, bool)
	Set(key string, value string, ttl time.Duration) error
}
