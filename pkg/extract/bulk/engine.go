package bulk

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/extract"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/metrics"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/observability"
)

// Config tunes bulk operations.
type Config struct {
	// WindowInDays splits incremental reads into one operation per window;
	// zero reads the whole range at once.
	WindowInDays    int
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	PollTimeout     time.Duration
	SubmitRetries   int
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		WindowInDays:    30,
		PollInterval:    5 * time.Second,
		MaxPollInterval: time.Minute,
		PollTimeout:     time.Hour,
		SubmitRetries:   6,
	}
}

// Engine runs bulk operations for the streams of one shop. It implements
// extract.BulkFactory.
type Engine struct {
	cfg    Config
	gate   *Gate
	logger *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an engine. All streams built by it share one gate.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = cfg.PollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultConfig().PollTimeout
	}
	return &Engine{
		cfg:    cfg,
		gate:   NewGate(1),
		logger: logger.With(zap.String("component", "bulk")),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// NewStream builds the stream of a ModeBulk descriptor.
func (e *Engine) NewStream(desc extract.Descriptor, deps extract.Deps) extract.Stream {
	return &Stream{desc: desc, deps: deps, engine: e}
}

// Run executes one operation and hands the result lines to handle. A job
// without result file yields no lines. The gate is held until handle
// returns.
func (e *Engine) Run(ctx context.Context, client extract.Client, stream, query string, w Window,
	handle func([]models.Record) error,
) (err error) {
	timer := metrics.NewTimer()
	ctx, span := observability.StartBulkJobSpan(ctx, stream, formatBound(w.Start), formatBound(w.End))
	status := StatusFailed
	defer func() {
		if errors.IsType(err, errors.ErrorTypeBulkJobTimedOut) {
			status = StatusTimedOut
		}
		metrics.BulkJobs.WithLabelValues(stream, string(status)).Inc()
		metrics.BulkJobDuration.WithLabelValues(stream).Observe(timer.Seconds())
		span.SetString("bulk.status", string(status))
		span.End(err)
	}()

	if err := e.gate.Acquire(ctx); err != nil {
		return err
	}
	defer e.gate.Release()

	job, err := e.submit(ctx, client, query)
	if err != nil {
		return err
	}
	ctx = logger.WithJobID(ctx, job.ID)
	log := logger.FromContext(ctx, e.logger)
	log.Info("bulk operation submitted", zap.Time("window_start", w.Start), zap.Time("window_end", w.End))

	job, err = e.poll(ctx, client, job, w)
	if job != nil {
		status = job.Status
		span.SetString("bulk.job_id", job.ID)
		span.SetInt("bulk.object_count", job.ObjectCount)
	}
	if err != nil {
		return err
	}

	if job.URL == "" {
		log.Info("bulk operation completed without results")
		return handle(nil)
	}

	var lines []models.Record
	err = client.Download(ctx, job.URL, func(r io.Reader) error {
		var readErr error
		lines, readErr = ReadLines(r, func(err error) {
			metrics.RecordsSkipped.WithLabelValues(stream, "malformed").Inc()
			log.Warn("skipping malformed result line", zap.Error(err))
		})
		return readErr
	})
	if err != nil {
		return err
	}
	log.Info("bulk operation completed", zap.Int64("objects", job.ObjectCount), zap.Int("lines", len(lines)))
	return handle(lines)
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
