package clients

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/ajitpratap0/shopsync/pkg/compression"
	"github.com/ajitpratap0/shopsync/pkg/errors"
)

func newTestClient(t *testing.T, srv *httptest.Server) *ShopifyClient {
	t.Helper()
	l, _ := newTestLimiter(t)
	return NewShopifyClient(ShopifyConfig{
		BaseURL: srv.URL + "/admin/api/2024-04",
		Tokens:  oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "shpat_test"}),
		Retry:   &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	}, l, zap.NewNop())
}

func TestShopifyClient_GetSendsTokenAndParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2024-04/orders.json", r.URL.Path)
		assert.Equal(t, "shpat_test", r.Header.Get(AccessTokenHeader))
		assert.Equal(t, "250", r.URL.Query().Get("limit"))
		w.Header().Set(CallLimitHeader, "1/40")
		_, _ = w.Write([]byte(`{"orders":[{"id":1}]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv).Get(context.Background(), "orders.json", url.Values{"limit": {"250"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), resp.JSON().Get("orders.0.id").Int())
}

func TestShopifyClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"shop":{}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Get(context.Background(), "shop.json", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestShopifyClient_ThrottledRequestBacksOffAndRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "2.0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"orders":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	rec := &sleepRecorder{}
	client.limiter.sleep = rec.sleep

	_, err := client.Get(context.Background(), "orders.json", nil)
	require.NoError(t, err)

	var blocked bool
	for _, w := range rec.waits {
		if w > time.Second {
			blocked = true
		}
	}
	assert.True(t, blocked, "retry after a 429 waits for Retry-After")
}

func TestShopifyClient_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Get(context.Background(), "missing.json", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestShopifyClient_GraphQL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "/admin/api/2024-04/graphql.json", r.URL.Path)
		assert.Equal(t, "{ shop { id } }", gjson.GetBytes(body, "query").String())
		_, _ = w.Write([]byte(`{"data":{"shop":{"id":"gid://shopify/Shop/1"}},
			"extensions":{"cost":{"requestedQueryCost":1,"throttleStatus":{"maximumAvailable":1000,"currentlyAvailable":999,"restoreRate":50}}}}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv).GraphQL(context.Background(), "{ shop { id } }")
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/Shop/1", resp.JSON().Get("data.shop.id").String())
}

func TestShopifyClient_GraphQLErrorsAreQueryErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"Field 'nope' doesn't exist"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).GraphQL(context.Background(), "{ nope }")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}

func TestShopifyClient_DownloadDetectsCompression(t *testing.T) {
	const body = "{\"id\":1}\n{\"id\":2}\n"

	for _, alg := range []compression.Algorithm{compression.None, compression.Gzip, compression.Zstd} {
		t.Run(string(alg), func(t *testing.T) {
			var buf bytes.Buffer
			zw, err := compression.NewWriter(&buf, alg, compression.Default)
			require.NoError(t, err)
			_, _ = zw.Write([]byte(body))
			require.NoError(t, zw.Close())

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(buf.Bytes())
			}))
			defer srv.Close()

			var got []byte
			err = newTestClient(t, srv).Download(context.Background(), srv.URL+"/result.jsonl", func(r io.Reader) error {
				var err error
				got, err = io.ReadAll(r)
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, body, string(got))
		})
	}
}

func TestNewHTTPClient(t *testing.T) {
	cfg := DefaultHTTPConfig()
	cfg.RequestTimeout = 5 * time.Second
	c := NewHTTPClient(cfg, nil)
	assert.Equal(t, 5*time.Second, c.Timeout)

	dl := WithoutTimeout(c)
	assert.Zero(t, dl.Timeout)
	assert.Same(t, c.Transport, dl.Transport)
	assert.Equal(t, 5*time.Second, c.Timeout)
}

func TestShopDomain(t *testing.T) {
	assert.Equal(t, "acme.myshopify.com", ShopDomain("acme"))
	assert.Equal(t, "acme.myshopify.com", ShopDomain("https://acme.myshopify.com/"))
}

func TestNewTokenSource_ClientCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "id", r.Form.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"exchanged","token_type":"bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	ts, err := NewTokenSource(context.Background(), "acme", Credentials{
		AuthMethod:   AuthMethodClientCredentials,
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     srv.URL,
	}, srv.Client())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "exchanged", tok.AccessToken)
}

func TestNewTokenSource_RejectsMissingToken(t *testing.T) {
	_, err := NewTokenSource(context.Background(), "acme", Credentials{AuthMethod: AuthMethodAccessToken}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
