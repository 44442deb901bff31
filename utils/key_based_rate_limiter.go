package utils

import (
	"golang.org/x/time/rate"
	"sync"
	"time"
)

// KeyBasedRateLimiter allows `times` events per `seconds` for every key.
type KeyBasedRateLimiter struct {
	seconds    int
	times      int
	mutex      sync.Mutex
	limiterMap map[string]*rate.Limiter
}

func NewKeyBasedRateLimiter(seconds, times int) *KeyBasedRateLimiter {
	return &KeyBasedRateLimiter{
		seconds:    seconds,
		times:      times,
		limiterMap: make(map[string]*rate.Limiter),
	}
}

func (k *KeyBasedRateLimiter) Acquire(key string) bool {
	k.mutex.Lock()
	rateLimiter, ok := k.limiterMap[key]
	if !ok {
		rateLimiter = rate.NewLimiter(rate.Every(time.Duration(k.seconds)*time.Second), k.times)
		k.limiterMap[key] = rateLimiter
	}
	k.mutex.Unlock()
	return rateLimiter.Allow()
}

func (k *KeyBasedRateLimiter) Clean(key string) {
	k.mutex.Lock()
	delete(k.limiterMap, key)
	k.mutex.Unlock()
}
