// Package shopify is the Shopify source: the stream catalogue, the entity
// transforms and the orchestration of a read.
package shopify

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/clients"
	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/extract"
	"github.com/ajitpratap0/shopsync/pkg/extract/bulk"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/metrics"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/observability"
	"github.com/ajitpratap0/shopsync/pkg/schema"
)

// Name is the registry name of the source.
const Name = "shopify"

//go:embed schemas/*.json
var embeddedSchemas embed.FS

func init() {
	_ = registry.RegisterSource(Name, func(cfg *config.SourceConfig, logger *zap.Logger) (core.Source, error) {
		return NewSource(cfg, logger)
	})
}

// Source reads one shop.
type Source struct {
	cfg     *config.SourceConfig
	client  extract.Client
	deps    extract.Deps
	schemas *schema.Loader
	logger  *zap.Logger
	now     func() time.Time
}

var _ core.Source = (*Source)(nil)

type options struct {
	baseURL    string
	tokenURL   string
	httpClient *http.Client
	client     extract.Client
	engine     *bulk.Engine
	now        func() time.Time
}

// Option customizes a Source.
type Option func(*options)

// WithBaseURL sends Admin API calls to url instead of the shop's domain.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithTokenURL overrides the client credentials token endpoint.
func WithTokenURL(url string) Option {
	return func(o *options) { o.tokenURL = url }
}

// WithHTTPClient sets the client used to fetch client credential tokens.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithClient replaces the transport.
func WithClient(c extract.Client) Option {
	return func(o *options) { o.client = c }
}

// WithBulkEngine replaces the bulk engine.
func WithBulkEngine(e *bulk.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithClock sets the time stamped on emitted records.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewSource validates cfg and wires the transport, the limiter, the bulk
// engine and the schema loader.
func NewSource(cfg *config.SourceConfig, logger *zap.Logger, opts ...Option) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logger.With(zap.String("source", Name), zap.String("shop", clients.ShopDomain(cfg.Shop)))

	client := o.client
	if client == nil {
		tokens, err := clients.NewTokenSource(context.Background(), cfg.Shop, clients.Credentials{
			AuthMethod:   cfg.Credentials.AuthMethod,
			AccessToken:  cfg.Credentials.AccessToken,
			ClientID:     cfg.Credentials.ClientID,
			ClientSecret: cfg.Credentials.ClientSecret,
			TokenURL:     o.tokenURL,
		}, o.httpClient)
		if err != nil {
			return nil, err
		}

		limits := clients.DefaultShopifyLimiterConfig()
		limits.RESTRate = cfg.RateLimits.RESTPerSec
		limits.RESTBurst = cfg.RateLimits.RESTBurst
		limits.Load.HighThreshold = cfg.RateLimits.LoadThreshold

		client = clients.NewShopifyClient(clients.ShopifyConfig{
			Shop:           cfg.Shop,
			APIVersion:     cfg.APIVersion,
			BaseURL:        o.baseURL,
			Tokens:         tokens,
			RequestTimeout: cfg.Reliability.RequestTimeout,
			Retry:          clients.NewRetryPolicy(cfg.Reliability.RetryAttempts, cfg.Reliability.RetryDelay, cfg.Reliability.MaxRetryDelay),
			EnableHTTP2:    cfg.Reliability.EnableHTTP2,
		}, clients.NewShopifyLimiter(limits, logger), logger)
	}

	engine := o.engine
	if engine == nil {
		engine = bulk.NewEngine(bulk.Config{
			WindowInDays:    cfg.Bulk.WindowInDays,
			PollInterval:    cfg.Bulk.PollInterval,
			MaxPollInterval: cfg.Bulk.MaxPollInterval,
			PollTimeout:     cfg.Bulk.PollTimeout,
			SubmitRetries:   cfg.Bulk.SubmitRetries,
		}, logger)
	}

	embedded, err := fs.Sub(embeddedSchemas, "schemas")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "open embedded schemas")
	}
	var layers []fs.FS
	if cfg.SchemasDir != "" {
		layers = append(layers, os.DirFS(cfg.SchemasDir))
	}
	layers = append(layers, embedded)

	return &Source{
		cfg:    cfg,
		client: client,
		deps: extract.Deps{
			Client:     client,
			Transforms: Transforms(),
			Bulk:       engine,
			Logger:     logger,
			PageSize:   cfg.PageSize,
			StartDate:  cfg.StartTime(),
			ShopURL:    clients.ShopDomain(cfg.Shop),
		},
		schemas: schema.NewLoader(logger, layers...),
		logger:  logger,
		now:     o.now,
	}, nil
}

// Spec returns the JSON schema of the source configuration.
func (s *Source) Spec() map[string]any {
	return Spec()
}

// Check reads the shop resource.
func (s *Source) Check(ctx context.Context) error {
	resp, err := s.client.Get(ctx, "shop.json", nil)
	if err != nil {
		return errors.Wrap(err, errors.TypeOf(err), "connection check failed")
	}
	if !resp.JSON().Get("shop.id").Exists() {
		return errors.New(errors.ErrorTypeData, "connection check failed: response has no shop")
	}
	return nil
}

// Discover lists every stream with its schema.
func (s *Source) Discover(_ context.Context) (*models.Catalog, error) {
	catalog := &models.Catalog{}
	for _, desc := range Catalog() {
		sch, err := s.schemas.Load(desc.Name)
		if err != nil {
			return nil, err
		}
		cs := models.CatalogStream{
			Name:               desc.Name,
			JSONSchema:         sch.Document,
			SupportedSyncModes: []string{"full_refresh"},
		}
		if desc.Incremental() {
			cs.SupportedSyncModes = append(cs.SupportedSyncModes, "incremental")
			cs.SourceDefinedCursor = true
			cs.DefaultCursorField = []string{desc.CursorField}
		}
		if len(desc.PrimaryKey) > 0 {
			cs.SourceDefinedPrimaryKey = [][]string{desc.PrimaryKey}
		}
		catalog.Streams = append(catalog.Streams, cs)
	}
	return catalog, nil
}

// Read syncs the selected streams one after the other. A failing stream is
// reported with a LOG message and its partial state; the others still run.
// The returned error aggregates every stream failure. An error from out
// stops the read at once.
func (s *Source) Read(ctx context.Context, state models.State, out core.MessageWriter) error {
	descs, err := s.selected()
	if err != nil {
		return err
	}

	ctx = logger.WithSyncID(ctx, uuid.NewString())
	log := logger.FromContext(ctx, s.logger)
	log.Info("sync started", zap.Int("streams", len(descs)))

	var errs error
	for _, desc := range descs {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, errors.Wrap(err, errors.ErrorTypeTimeout, "sync cancelled"))
		}
		next, streamErr, writeErr := s.readStream(ctx, desc, state[desc.Name], out)
		if writeErr != nil {
			return writeErr
		}
		if streamErr != nil {
			errs = multierr.Append(errs, streamErr)
			msg := fmt.Sprintf("stream %s failed: %v", desc.Name, streamErr)
			if err := out.Write(models.NewLogMessage("ERROR", msg)); err != nil {
				return err
			}
		}
		if len(next) > 0 {
			if err := out.Write(models.NewStateMessage(desc.Name, next)); err != nil {
				return err
			}
		}
	}

	log.Info("sync finished", zap.Int("failed_streams", len(multierr.Errors(errs))))
	return errs
}

// readStream syncs one stream. streamErr is the failure of the stream
// itself, writeErr a failure of out.
func (s *Source) readStream(ctx context.Context, desc extract.Descriptor, prior models.StreamState, out core.MessageWriter) (next models.StreamState, streamErr, writeErr error) {
	ctx, span := observability.StartStreamSpan(ctx, desc.Name, desc.Mode.String())
	timer := metrics.NewTimer()
	log := logger.FromContext(logger.WithStream(ctx, desc.Name), s.logger)

	stream, err := extract.New(desc, s.deps)
	if err != nil {
		span.End(err)
		return prior, err, nil
	}

	var validator *schema.Schema
	if s.cfg.ValidateRecords {
		if validator, err = s.schemas.Load(desc.Name); err != nil {
			span.End(err)
			return prior, err, nil
		}
	}

	var count int64
	next, err = stream.Sync(ctx, prior, func(rec models.Record) error {
		if _, ok := rec["shop_url"]; !ok {
			rec["shop_url"] = s.deps.ShopURL
		}
		if validator != nil {
			if verr := validator.Validate(rec); verr != nil {
				log.Warn("record does not match schema", zap.Error(verr), zap.Any("record_id", rec["id"]))
			}
		}
		if werr := out.Write(models.NewRecordMessage(desc.Name, rec, s.now())); werr != nil {
			writeErr = werr
			return werr
		}
		count++
		return nil
	})

	span.SetInt("records", count)
	span.End(err)
	metrics.StreamSyncDuration.WithLabelValues(desc.Name, metrics.Outcome(err)).Observe(timer.Seconds())
	if writeErr != nil {
		return next, nil, writeErr
	}
	if err != nil {
		log.Error("stream failed", zap.Error(err), zap.Int64("records", count))
		return next, err, nil
	}
	log.Info("stream synced", zap.Int64("records", count), zap.Duration("duration", timer.Elapsed()))
	return next, nil, nil
}

// selected returns the configured streams in catalogue order.
func (s *Source) selected() ([]extract.Descriptor, error) {
	all := Catalog()
	known := make(map[string]bool, len(all))
	for _, d := range all {
		known[d.Name] = true
	}
	for _, name := range s.cfg.Streams {
		if !known[name] {
			return nil, errors.Newf(errors.ErrorTypeConfig, "unknown stream %q", name)
		}
	}

	var out []extract.Descriptor
	for _, d := range all {
		if s.cfg.Selected(d.Name) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Close releases nothing; the transport keeps no open streams between calls.
func (s *Source) Close() error {
	return nil
}
