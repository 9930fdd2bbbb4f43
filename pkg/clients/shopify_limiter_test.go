package clients

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestLimiter(t *testing.T) (*ShopifyLimiter, *sleepRecorder) {
	t.Helper()
	l := NewShopifyLimiter(DefaultShopifyLimiterConfig(), zap.NewNop())
	rec := &sleepRecorder{}
	l.sleep = rec.sleep
	return l, rec
}

func TestLoadPolicy_DelayFor(t *testing.T) {
	p := DefaultLoadPolicy()
	tests := []struct {
		name string
		load float64
		want time.Duration
	}{
		{"unknown", -1, time.Second},
		{"idle", 0.1, 200 * time.Millisecond},
		{"half", 0.5, 200 * time.Millisecond},
		{"busy", 0.75, 1500 * time.Millisecond},
		{"saturated", 0.95, 5 * time.Second},
		{"full", 1, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.delayFor(tt.load))
		})
	}
}

func TestParseCallLimit(t *testing.T) {
	assert.InDelta(t, 0.5, parseCallLimit("20/40"), 1e-9)
	assert.InDelta(t, 0.975, parseCallLimit(" 39/40 "), 1e-9)
	assert.Equal(t, -1.0, parseCallLimit(""))
	assert.Equal(t, -1.0, parseCallLimit("x/40"))
	assert.Equal(t, -1.0, parseCallLimit("1/0"))
}

func TestShopifyLimiter_ObserveRESTDelaysNextAcquire(t *testing.T) {
	l, rec := newTestLimiter(t)
	ctx := context.Background()

	header := http.Header{}
	header.Set(CallLimitHeader, "38/40")
	l.Observe(APIClassREST, header, nil)

	require.NoError(t, l.Acquire(ctx, APIClassREST))
	require.NoError(t, l.Acquire(ctx, APIClassREST))

	// the delay applies once, to the call right after the observation
	require.Len(t, rec.waits, 1)
	assert.Equal(t, 5*time.Second, rec.waits[0])
}

func TestShopifyLimiter_ClassesAreIndependent(t *testing.T) {
	l, rec := newTestLimiter(t)

	l.Backoff(APIClassREST, 3*time.Second)
	require.NoError(t, l.Acquire(context.Background(), APIClassGraphQL))
	assert.Empty(t, rec.waits)

	require.NoError(t, l.Acquire(context.Background(), APIClassREST))
	require.Len(t, rec.waits, 1)
	assert.InDelta(t, 3*time.Second, rec.waits[0], float64(100*time.Millisecond))
}

func TestShopifyLimiter_ObserveGraphQLThrottleStatus(t *testing.T) {
	l, _ := newTestLimiter(t)

	body := []byte(`{"data":{},"extensions":{"cost":{"requestedQueryCost":12,"actualQueryCost":10,
		"throttleStatus":{"maximumAvailable":2000,"currentlyAvailable":1500,"restoreRate":100}}}}`)
	l.Observe(APIClassGraphQL, nil, body)

	stats := l.Stats(APIClassGraphQL)
	assert.Equal(t, 2000, stats.Burst)
	assert.Equal(t, 100.0, stats.Rate)
	assert.InDelta(t, 1500, stats.CurrentTokens, 1)

	require.NoError(t, l.Acquire(context.Background(), APIClassGraphQL))
	stats = l.Stats(APIClassGraphQL)
	assert.InDelta(t, 1488, stats.CurrentTokens, 2)
}

func TestShopifyLimiter_AcquireHonoursCancellation(t *testing.T) {
	l := NewShopifyLimiter(ShopifyLimiterConfig{RESTRate: 0.001, RESTBurst: 1, Load: DefaultLoadPolicy()}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Acquire(ctx, APIClassREST))
	err := l.Acquire(ctx, APIClassREST)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, ParseRetryAfter("2.0"))
	assert.Equal(t, time.Duration(0), ParseRetryAfter(""))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("soon"))
}
