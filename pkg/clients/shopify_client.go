// Package clients talks to the Shopify Admin API under its rate limits.
package clients

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/ajitpratap0/shopsync/pkg/compression"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/metrics"
)

// AccessTokenHeader authenticates Admin API calls.
const AccessTokenHeader = "X-Shopify-Access-Token"

// Response is an upstream reply with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON returns the parsed body.
func (r *Response) JSON() gjson.Result {
	return gjson.ParseBytes(r.Body)
}

// ShopifyConfig configures a ShopifyClient.
type ShopifyConfig struct {
	// Shop is the shop name or its myshopify.com domain.
	Shop       string
	APIVersion string

	// BaseURL overrides the URL derived from Shop, e.g. for a local fake.
	BaseURL string

	Tokens         oauth2.TokenSource
	RequestTimeout time.Duration
	Retry          *RetryPolicy
	EnableHTTP2    bool
}

// ShopifyClient is the transport used by every stream. Each call is gated by
// the limiter, feeds the response back into it, and retries transient
// failures with the configured policy.
type ShopifyClient struct {
	baseURL    string
	httpClient *http.Client
	download   *http.Client
	limiter    *ShopifyLimiter
	retry      *RetryPolicy
	tokens     oauth2.TokenSource
	logger     *zap.Logger
}

// ShopDomain normalises "my-shop", "my-shop.myshopify.com" or a full URL to
// the shop's myshopify.com host.
func ShopDomain(shop string) string {
	shop = strings.TrimSpace(shop)
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	shop = strings.TrimSuffix(shop, "/")
	if !strings.Contains(shop, ".") {
		shop += ".myshopify.com"
	}
	return shop
}

// NewShopifyClient creates a transport for one shop.
func NewShopifyClient(cfg ShopifyConfig, limiter *ShopifyLimiter, logger *zap.Logger) *ShopifyClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetryPolicy()
	}
	if limiter == nil {
		limiter = NewShopifyLimiter(DefaultShopifyLimiterConfig(), logger)
	}

	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s/admin/api/%s/", ShopDomain(cfg.Shop), cfg.APIVersion)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	httpCfg := DefaultHTTPConfig()
	httpCfg.RequestTimeout = cfg.RequestTimeout
	httpCfg.EnableHTTP2 = cfg.EnableHTTP2
	httpClient := NewHTTPClient(httpCfg, logger)

	return &ShopifyClient{
		baseURL:    base,
		httpClient: httpClient,
		download:   WithoutTimeout(httpClient),
		limiter:    limiter,
		retry:      cfg.Retry,
		tokens:     cfg.Tokens,
		logger:     logger.With(zap.String("component", "shopify_client")),
	}
}

// Limiter returns the limiter gating this client.
func (c *ShopifyClient) Limiter() *ShopifyLimiter {
	return c.limiter
}

// Get performs a REST GET of path, relative to the versioned admin API root.
func (c *ShopifyClient) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	return c.do(ctx, APIClassREST, func() *requests.Builder {
		b := requests.URL(c.baseURL).Path(strings.TrimPrefix(path, "/"))
		for key, values := range params {
			b = b.Param(key, values...)
		}
		return b
	})
}

// GraphQL posts a query to graphql.json. A response with top-level errors is
// returned as ErrorTypeQuery, or ErrorTypeRateLimit when throttled.
func (c *ShopifyClient) GraphQL(ctx context.Context, query string) (*Response, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "query", query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode graphql request")
	}
	return c.do(ctx, APIClassGraphQL, func() *requests.Builder {
		return requests.URL(c.baseURL).
			Path("graphql.json").
			ContentType("application/json").
			BodyBytes(body)
	})
}

// Download streams a bulk result file to handle. Compressed content is
// detected from the payload and decompressed transparently.
func (c *ShopifyClient) Download(ctx context.Context, rawURL string, handle func(io.Reader) error) error {
	return c.retry.ExecuteWithCondition(ctx, func() error {
		var status int
		err := requests.URL(rawURL).
			Client(c.download).
			AddValidator(nil).
			Handle(func(res *http.Response) error {
				status = res.StatusCode
				if res.StatusCode != http.StatusOK {
					return nil
				}
				return decodeBody(res.Body, handle)
			}).
			Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.TypeOf(err) != errors.ErrorTypeInternal {
				return err
			}
			return errors.Wrap(err, errors.ErrorTypeConnection, "bulk result download failed")
		}
		if status != http.StatusOK {
			return statusError(status, "bulk result download")
		}
		return nil
	}, errors.IsRetryable)
}

func decodeBody(body io.Reader, handle func(io.Reader) error) error {
	br := bufio.NewReader(body)
	zr, err := compression.NewReader(br, compression.Detect(br))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "invalid compressed payload")
	}
	defer zr.Close()
	return handle(zr)
}

func (c *ShopifyClient) do(ctx context.Context, class APIClass, build func() *requests.Builder) (*Response, error) {
	var out *Response

	err := c.retry.ExecuteWithCondition(ctx, func() error {
		if err := c.limiter.Acquire(ctx, class); err != nil {
			return err
		}

		b := build().Client(c.httpClient).AddValidator(nil)
		if c.tokens != nil {
			tok, err := c.tokens.Token()
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to obtain access token")
			}
			b = b.Header(AccessTokenHeader, tok.AccessToken)
		}

		resp := &Response{}
		err := b.Handle(func(res *http.Response) error {
			resp.StatusCode = res.StatusCode
			resp.Header = res.Header
			body, err := io.ReadAll(res.Body)
			resp.Body = body
			return err
		}).Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.HTTPRequests.WithLabelValues(string(class), "error").Inc()
			return errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
		}

		metrics.HTTPRequests.WithLabelValues(string(class), strconv.Itoa(resp.StatusCode)).Inc()
		c.limiter.Observe(class, resp.Header, resp.Body)

		if resp.StatusCode == http.StatusTooManyRequests {
			c.limiter.Backoff(class, ParseRetryAfter(resp.Header.Get("Retry-After")))
			return errors.New(errors.ErrorTypeRateLimit, "throttled by upstream")
		}
		if resp.StatusCode >= 300 {
			return statusError(resp.StatusCode, string(class)+" request").WithDetail("body", truncate(resp.Body, 512))
		}
		if class == APIClassGraphQL {
			if err := c.graphQLError(resp); err != nil {
				return err
			}
		}

		out = resp
		return nil
	}, errors.IsRetryable)

	if err != nil {
		c.logger.Debug("upstream call failed", zap.String("api_class", string(class)), zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (c *ShopifyClient) graphQLError(resp *Response) error {
	errs := gjson.GetBytes(resp.Body, "errors")
	if !errs.Exists() || len(errs.Array()) == 0 {
		return nil
	}
	for _, e := range errs.Array() {
		if e.Get("extensions.code").String() == "THROTTLED" {
			return errors.New(errors.ErrorTypeRateLimit, "graphql query throttled")
		}
	}
	return errors.Newf(errors.ErrorTypeQuery, "graphql query failed: %s", errs.Array()[0].Get("message").String()).
		WithDetail("errors", errs.Raw)
}

func statusError(status int, what string) *errors.Error {
	var t errors.ErrorType
	switch {
	case status == http.StatusUnauthorized:
		t = errors.ErrorTypeAuthentication
	case status == http.StatusForbidden:
		t = errors.ErrorTypePermission
	case status == http.StatusNotFound:
		t = errors.ErrorTypeNotFound
	case status >= 500:
		t = errors.ErrorTypeConnection
	default:
		t = errors.ErrorTypeValidation
	}
	return errors.Newf(t, "%s returned status %d", what, status).WithDetail("status", status)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
