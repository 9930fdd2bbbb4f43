package clients

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/metrics"
)

// APIClass names an independent upstream rate-limit budget.
type APIClass string

const (
	APIClassREST    APIClass = "rest"
	APIClassGraphQL APIClass = "graphql"
)

// CallLimitHeader carries the REST bucket level as "used/max".
const CallLimitHeader = "X-Shopify-Shop-Api-Call-Limit"

// LoadPolicy maps the observed REST bucket load to a delay applied before the
// next call of the same class.
type LoadPolicy struct {
	HighThreshold float64
	MidThreshold  float64
	High          time.Duration
	Mid           time.Duration
	Low           time.Duration
	Unknown       time.Duration
}

// DefaultLoadPolicy returns the delays used against a production shop.
func DefaultLoadPolicy() LoadPolicy {
	return LoadPolicy{
		HighThreshold: 0.9,
		MidThreshold:  0.5,
		High:          5 * time.Second,
		Mid:           1500 * time.Millisecond,
		Low:           200 * time.Millisecond,
		Unknown:       1 * time.Second,
	}
}

// delayFor returns the delay for a load ratio; a negative load means the
// header was missing or unparsable.
func (p LoadPolicy) delayFor(load float64) time.Duration {
	switch {
	case load < 0:
		return p.Unknown
	case load >= p.HighThreshold:
		return p.High
	case load > p.MidThreshold:
		return p.Mid
	default:
		return p.Low
	}
}

// ShopifyLimiterConfig configures both budgets.
type ShopifyLimiterConfig struct {
	RESTRate  float64
	RESTBurst int
	Load      LoadPolicy

	// GraphQL defaults until the first throttleStatus is observed.
	GraphQLRestoreRate float64
	GraphQLBucket      int
	DefaultQueryCost   float64
}

// DefaultShopifyLimiterConfig returns the documented limits of a standard plan.
func DefaultShopifyLimiterConfig() ShopifyLimiterConfig {
	return ShopifyLimiterConfig{
		RESTRate:           2,
		RESTBurst:          40,
		Load:               DefaultLoadPolicy(),
		GraphQLRestoreRate: 50,
		GraphQLBucket:      1000,
		DefaultQueryCost:   50,
	}
}

type budget struct {
	mu           sync.Mutex
	bucket       *TokenBucketRateLimiter
	pendingDelay time.Duration
	blockedUntil time.Time
	cost         float64
}

// ShopifyLimiter gates calls per API class. Acquire never drops or reorders
// callers; it only delays them.
type ShopifyLimiter struct {
	config  ShopifyLimiterConfig
	budgets map[APIClass]*budget
	logger  *zap.Logger

	// sleep is replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewShopifyLimiter creates a limiter with one budget per API class.
func NewShopifyLimiter(cfg ShopifyLimiterConfig, logger *zap.Logger) *ShopifyLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultQueryCost <= 0 {
		cfg.DefaultQueryCost = 50
	}
	return &ShopifyLimiter{
		config: cfg,
		budgets: map[APIClass]*budget{
			APIClassREST: {
				bucket: NewTokenBucketRateLimiter(cfg.RESTRate, cfg.RESTBurst),
				cost:   1,
			},
			APIClassGraphQL: {
				bucket: NewTokenBucketRateLimiter(cfg.GraphQLRestoreRate, cfg.GraphQLBucket),
				cost:   cfg.DefaultQueryCost,
			},
		},
		logger: logger.With(zap.String("component", "rate_limiter")),
		sleep:  sleepContext,
		now:    time.Now,
	}
}

func (l *ShopifyLimiter) budget(class APIClass) *budget {
	if b, ok := l.budgets[class]; ok {
		return b
	}
	return l.budgets[APIClassREST]
}

// Acquire blocks until a call of the given class is safe to send.
func (l *ShopifyLimiter) Acquire(ctx context.Context, class APIClass) error {
	b := l.budget(class)
	start := l.now()

	b.mu.Lock()
	wait := b.pendingDelay
	if until := b.blockedUntil.Sub(l.now()); until > wait {
		wait = until
	}
	b.pendingDelay = 0
	cost := b.cost
	b.mu.Unlock()

	if wait > 0 {
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
	if err := b.bucket.WaitN(ctx, cost); err != nil {
		return err
	}

	metrics.RateLimitWait.WithLabelValues(string(class)).Observe(l.now().Sub(start).Seconds())
	return nil
}

// Observe updates the budget of class from a response.
func (l *ShopifyLimiter) Observe(class APIClass, header http.Header, body []byte) {
	switch class {
	case APIClassGraphQL:
		l.observeGraphQL(body)
	default:
		l.observeREST(header)
	}
}

func (l *ShopifyLimiter) observeREST(header http.Header) {
	load := parseCallLimit(header.Get(CallLimitHeader))
	delay := l.config.Load.delayFor(load)

	b := l.budgets[APIClassREST]
	b.mu.Lock()
	b.pendingDelay = delay
	b.mu.Unlock()

	if load >= l.config.Load.HighThreshold {
		l.logger.Debug("rest bucket near capacity", zap.Float64("load", load), zap.Duration("delay", delay))
	}
}

func (l *ShopifyLimiter) observeGraphQL(body []byte) {
	cost := gjson.GetBytes(body, "extensions.cost")
	if !cost.Exists() {
		return
	}
	b := l.budgets[APIClassGraphQL]

	status := cost.Get("throttleStatus")
	if capacity := status.Get("maximumAvailable"); capacity.Exists() && capacity.Int() > 0 {
		b.bucket.SetBurst(int(capacity.Int()))
	}
	if restore := status.Get("restoreRate"); restore.Exists() && restore.Float() > 0 {
		b.bucket.SetRate(restore.Float())
	}
	if current := status.Get("currentlyAvailable"); current.Exists() {
		b.bucket.SetTokens(current.Float())
	}
	if requested := cost.Get("requestedQueryCost"); requested.Exists() && requested.Float() > 0 {
		b.mu.Lock()
		b.cost = requested.Float()
		b.mu.Unlock()
	}
}

// Backoff blocks the class until retryAfter has elapsed.
func (l *ShopifyLimiter) Backoff(class APIClass, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	b := l.budget(class)
	until := l.now().Add(retryAfter)

	b.mu.Lock()
	if until.After(b.blockedUntil) {
		b.blockedUntil = until
	}
	b.mu.Unlock()

	l.logger.Info("throttled by upstream", zap.String("api_class", string(class)), zap.Duration("retry_after", retryAfter))
}

// Stats returns the token bucket statistics of a class.
func (l *ShopifyLimiter) Stats(class APIClass) RateLimiterStats {
	return l.budget(class).bucket.GetStats()
}

// parseCallLimit turns "used/max" into used/max, or -1.
func parseCallLimit(v string) float64 {
	used, limit, ok := strings.Cut(strings.TrimSpace(v), "/")
	if !ok {
		return -1
	}
	u, err := strconv.ParseFloat(used, 64)
	if err != nil {
		return -1
	}
	m, err := strconv.ParseFloat(limit, 64)
	if err != nil || m <= 0 {
		return -1
	}
	return u / m
}

// ParseRetryAfter reads a Retry-After header in seconds; 0 when absent.
func ParseRetryAfter(v string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
