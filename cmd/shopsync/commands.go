package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shopsync/pkg/compression"
	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
	"github.com/ajitpratap0/shopsync/pkg/connector/sources/shopify"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/observability"
)

type globalFlags struct {
	configFile  string
	output      string
	compression string
	gzip        bool
}

// codec resolves the output compression; --gzip is shorthand for
// --compression gzip.
func (f *globalFlags) codec() (compression.Algorithm, error) {
	if f.gzip {
		return compression.Gzip, nil
	}
	return compression.ParseAlgorithm(f.compression)
}

// flagKeys maps command flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level":    "observability.log_level",
	"log-encoding": "observability.log_encoding",
	"metrics-addr": "observability.metrics_addr",
	"trace":        "observability.tracing",
	"streams":      "streams",
}

func newSpecCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "spec",
		Short: "Print the configuration schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutput(cmd, flags, func(out core.MessageWriter) error {
				return out.Write(models.NewSpecMessage(shopify.Spec()))
			})
		},
	}
}

func newCheckCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the credentials against the shop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutput(cmd, flags, func(out core.MessageWriter) error {
				env, err := setup(cmd, flags)
				if err != nil {
					// an unusable configuration is a failed check, not a crash
					return out.Write(models.NewConnectionStatusMessage(err))
				}
				defer env.close()

				return out.Write(models.NewConnectionStatusMessage(env.source.Check(cmd.Context())))
			})
		},
	}
}

func newDiscoverCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List the streams with their schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutput(cmd, flags, func(out core.MessageWriter) error {
				env, err := setup(cmd, flags)
				if err != nil {
					return err
				}
				defer env.close()

				catalog, err := env.source.Discover(cmd.Context())
				if err != nil {
					return err
				}
				return out.Write(models.NewCatalogMessage(catalog))
			})
		},
	}
}

func newReadCommand(flags *globalFlags) *cobra.Command {
	var stateFile string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read the selected streams",
		Long: `Read the selected streams and write RECORD, STATE and LOG messages.

Example:
  shopsync read --config shop.yaml --state state.json --streams orders,customers`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutput(cmd, flags, func(out core.MessageWriter) error {
				state, err := loadState(stateFile)
				if err != nil {
					return err
				}
				env, err := setup(cmd, flags)
				if err != nil {
					return err
				}
				defer env.close()

				ctx := cmd.Context()
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}

				start := time.Now()
				err = env.source.Read(ctx, state, out)
				env.log.Info("read finished",
					zap.Duration("duration", time.Since(start)),
					zap.Int("failed_streams", len(multierr.Errors(err))))
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&stateFile, "state", "s", "", "Path to a state file: a stream to state object, or the STATE messages of a previous read")
	cmd.Flags().StringSlice("streams", nil, "Streams to read; all when empty")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the read after this long; 0 disables the limit")
	return cmd
}

// runEnv is everything a command needs once the configuration is loaded.
type runEnv struct {
	source  core.Source
	log     *zap.Logger
	metrics *http.Server
	tracing bool
}

// setup loads the configuration, overlays flags and environment, and
// starts logging, metrics and tracing.
func setup(cmd *cobra.Command, flags *globalFlags) (*runEnv, error) {
	if flags.configFile == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind --%s: %w", flag, err)
			}
		}
	}
	if err := config.ApplyEnv(cfg, v); err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogEncoding,
	}); err != nil {
		return nil, err
	}
	log := logger.Get().With(zap.String("component", "shopsync-cli"))

	env := &runEnv{log: log, tracing: cfg.Observability.Tracing}
	if cfg.Observability.Tracing {
		if err := observability.InitTracing(observability.TracingConfig{
			ServiceName:    "shopsync",
			ServiceVersion: version,
			Enabled:        true,
			SamplingRate:   1,
			Writer:         cmd.ErrOrStderr(),
		}); err != nil {
			return nil, err
		}
	}
	if cfg.Observability.MetricsAddr != "" {
		env.metrics = serveMetrics(cfg.Observability.MetricsAddr, log)
	}

	env.source, err = registry.CreateSource(shopify.Name, cfg, log)
	if err != nil {
		env.close()
		return nil, err
	}
	return env, nil
}

func (e *runEnv) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if e.source != nil {
		if err := e.source.Close(); err != nil {
			e.log.Warn("failed to close source", zap.Error(err))
		}
	}
	if e.tracing {
		if err := observability.Shutdown(ctx); err != nil {
			e.log.Warn("failed to flush traces", zap.Error(err))
		}
	}
	if e.metrics != nil {
		_ = e.metrics.Shutdown(ctx)
	}
	_ = logger.Sync()
}

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}

// withOutput opens the message sink, runs fn with a signal-aware context and
// flushes the sink.
func withOutput(cmd *cobra.Command, flags *globalFlags, fn func(core.MessageWriter) error) (err error) {
	codec, err := flags.codec()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	var sink io.Writer = cmd.OutOrStdout()
	if flags.output != "" && flags.output != "-" {
		f, ferr := os.Create(flags.output)
		if ferr != nil {
			return fmt.Errorf("failed to create output %s: %w", flags.output, ferr)
		}
		defer func() { err = multierr.Append(err, f.Close()) }()
		sink = f
	}

	buffered := bufio.NewWriterSize(sink, 64*1024)
	zw, err := compression.NewWriter(buffered, codec, compression.Default)
	if err != nil {
		return err
	}

	err = fn(core.NewJSONLinesWriter(zw))

	err = multierr.Append(err, zw.Close())
	return multierr.Append(err, buffered.Flush())
}

// loadState reads either a stream to state object or a JSON lines file of
// messages, where the last STATE message of each stream wins.
func loadState(path string) (models.State, error) {
	if path == "" {
		return models.State{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return models.State{}, nil
	}

	var state models.State
	if err := decodeNumbers(data, &state); err == nil {
		return state, nil
	}

	state = models.State{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var msg models.Message
		if err := decodeNumbers(raw, &msg); err != nil {
			return nil, fmt.Errorf("failed to parse state file %s line %d: %w", path, line, err)
		}
		if msg.Type == models.MessageTypeState && msg.State != nil {
			state[msg.State.Stream] = msg.State.Data
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}
	return state, nil
}

// decodeNumbers decodes exactly one JSON value from data, keeping numbers as
// json.Number so integer cursors survive beyond 2^53.
func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}
