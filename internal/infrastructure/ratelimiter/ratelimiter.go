package ratelimiter

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	bucketKeyPrefix   = "rl:bucket:"
	lastFillKeyPrefix = "rl:fill:"
	defaultSourceKey  = "X-RateLimit-Key"

	// Buckets hold thousandths of a token so slow refill rates still accrue.
	milli = 1000
)

type Limiter interface {
	Allow(sourceKey string) bool
	GetSourceKey(r *http.Request) string
	Remaining(sourceKey string) int
	GetMaxBurst() int
}

// RateLimiter is a token bucket per source key, persisted in a GetterSetter.
type RateLimiter struct {
	maxRatePerSecond int
	maxBurst         int
	cache            GetterSetter
	cacheTTL         time.Duration
	sourceHeaderKey  string
	clock            clockwork.Clock
	locks            sync.Map // map[string]*sync.Mutex
}

func (rl *RateLimiter) getLock(sourceKey string) *sync.Mutex {
	lock, _ := rl.locks.LoadOrStore(sourceKey, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

type bucketState struct {
	milliTokens int
	lastFill    int64 // Unix milliseconds
}

func (rl *RateLimiter) fullBucket(now int64) bucketState {
	return bucketState{milliTokens: rl.maxBurst * milli, lastFill: now}
}

func (rl *RateLimiter) getState(sourceKey string, now int64) bucketState {
	bucket, bucketErr := rl.cache.Get(bucketKeyPrefix + sourceKey)
	lastFill, fillErr := rl.cache.Get(lastFillKeyPrefix + sourceKey)

	// Misses start a fresh bucket; other cache errors fail open.
	if bucketErr != nil || fillErr != nil {
		return rl.fullBucket(now)
	}

	return bucketState{
		milliTokens: bucket,
		lastFill:    int64(lastFill),
	}
}

func (rl *RateLimiter) setState(sourceKey string, state bucketState) {
	_ = rl.cache.SetWithExpiration(bucketKeyPrefix+sourceKey, state.milliTokens, rl.cacheTTL)
	_ = rl.cache.SetWithExpiration(lastFillKeyPrefix+sourceKey, int(state.lastFill), rl.cacheTTL)
}

func (rl *RateLimiter) refillTokens(state bucketState, now int64) bucketState {
	elapsed := now - state.lastFill
	if elapsed <= 0 {
		return state
	}

	// rate tokens/s == rate milli-tokens/ms
	tokens := state.milliTokens + int(elapsed)*rl.maxRatePerSecond
	tokens = min(tokens, rl.maxBurst*milli)

	return bucketState{
		milliTokens: tokens,
		lastFill:    now,
	}
}

func (rl *RateLimiter) Remaining(sourceKey string) int {
	lock := rl.getLock(sourceKey)
	lock.Lock()
	defer lock.Unlock()

	now := rl.clock.Now().UnixMilli()
	state := rl.refillTokens(rl.getState(sourceKey, now), now)
	rl.setState(sourceKey, state)

	return state.milliTokens / milli
}

func (rl *RateLimiter) GetMaxBurst() int {
	return rl.maxBurst
}

func (rl *RateLimiter) Allow(sourceKey string) bool {
	lock := rl.getLock(sourceKey)
	lock.Lock()
	defer lock.Unlock()

	now := rl.clock.Now().UnixMilli()
	state := rl.refillTokens(rl.getState(sourceKey, now), now)

	allowed := state.milliTokens >= milli
	if allowed {
		state.milliTokens -= milli
	}
	rl.setState(sourceKey, state)

	return allowed
}

// GetSourceKey prefers the configured header (first hop of a forwarded
// list) and falls back to the remote IP.
func (rl *RateLimiter) GetSourceKey(r *http.Request) string {
	if key := r.Header.Get(rl.sourceHeaderKey); key != "" {
		first, _, _ := strings.Cut(key, ",")
		return strings.TrimSpace(first)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type Options struct {
	MaxRatePerSecond int
	MaxBurst         int
	Cache            GetterSetter
	CacheTTL         time.Duration
	SourceHeaderKey  string
	Clock            clockwork.Clock
}

func New(options Options) Limiter {
	if options.Clock == nil {
		options.Clock = clockwork.NewRealClock()
	}

	if options.Cache == nil {
		options.Cache = NewInMemoryWithClock(options.Clock)
	}

	if options.CacheTTL == 0 {
		options.CacheTTL = 10 * time.Second
	}

	if options.MaxBurst <= 0 {
		options.MaxBurst = options.MaxRatePerSecond
	}

	if options.SourceHeaderKey == "" {
		options.SourceHeaderKey = defaultSourceKey
	}

	return &RateLimiter{
		maxRatePerSecond: options.MaxRatePerSecond,
		maxBurst:         options.MaxBurst,
		cache:            options.Cache,
		cacheTTL:         options.CacheTTL,
		sourceHeaderKey:  options.SourceHeaderKey,
		clock:            options.Clock,
	}
}
