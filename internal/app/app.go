// Package app wires all samvad subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and drives the suggestion timer, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithCaptureDriver,
// WithHTTPClient, ...). When an option is not provided, New builds the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/samvad-xr/samvad/internal/backend"
	"github.com/samvad-xr/samvad/internal/config"
	"github.com/samvad-xr/samvad/internal/conversation"
	"github.com/samvad-xr/samvad/internal/health"
	"github.com/samvad-xr/samvad/internal/observe"
	"github.com/samvad-xr/samvad/internal/phonetic"
	"github.com/samvad-xr/samvad/internal/recording"
	"github.com/samvad-xr/samvad/internal/resilience"
	"github.com/samvad-xr/samvad/internal/suggestion"
	"github.com/samvad-xr/samvad/internal/turn"
	"github.com/samvad-xr/samvad/internal/ui"
	"github.com/samvad-xr/samvad/pkg/audio/capture"
)

// shutdownGrace bounds http.Server.Shutdown when Run's context ends.
const shutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	driver     capture.Driver
	httpClient *http.Client
	metrics    *observe.Metrics
	logLevel   *slog.LevelVar
	listener   net.Listener

	bridge  *ui.Bridge
	breaker *resilience.CircuitBreaker
	client  *backend.Client
	timer   *suggestion.Timer
	orch    *turn.Orchestrator
	handler http.Handler

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCaptureDriver injects a capture driver instead of the one selected by
// recording.source.
func WithCaptureDriver(d capture.Driver) Option {
	return func(a *App) { a.driver = d }
}

// WithHTTPClient sets the client used for backend requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) { a.httpClient = hc }
}

// WithMetrics injects the metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel gives the App the level variable behind the default logger so
// config reloads can change verbosity.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithListener makes Run serve on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. cfg must already be
// validated.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	codec := ui.CodecWAV
	if cfg.UI.PlaybackCodec == config.CodecOpus {
		codec = ui.CodecOpus
	}
	a.bridge = ui.NewBridge(ui.Options{
		OriginPatterns: cfg.UI.OriginPatterns,
		Codec:          codec,
		OpusBitrate:    cfg.UI.OpusBitrate,
		Metrics:        a.metrics,
	})

	if err := a.initDriver(); err != nil {
		return nil, err
	}
	if err := a.initBackend(); err != nil {
		return nil, err
	}
	sinks, err := a.buildSinks()
	if err != nil {
		return nil, err
	}

	session := recording.New(a.driver,
		recording.WithDevice(cfg.Recording.Device),
		recording.WithMaxDuration(cfg.Recording.MaxDurationSeconds),
		recording.WithSampleRate(cfg.Recording.SampleRate),
		recording.WithScaling(cfg.Recording.ScalingMode()),
	)
	state := conversation.NewState(conversation.WithLanguages(cfg.Conversation.InputLanguage, cfg.Conversation.TargetLanguage))
	catalog := conversation.NewCatalog(cfg.Conversation.CatalogLanguages(), cfg.Conversation.Objects, phonetic.New())
	a.timer = suggestion.New(suggestion.WithDelay(cfg.Suggestion.Delay))

	a.orch = turn.New(session, a.client, state, a.timer,
		turn.WithSinks(sinks),
		turn.WithCatalog(catalog),
		turn.WithMetrics(a.metrics),
	)
	a.bridge.Attach(a.orch)

	a.handler = a.routes()

	slog.InfoContext(ctx, "app initialised",
		"backend", a.client.URL(),
		"capture", cfg.Recording.Source,
		"input_language", cfg.Conversation.InputLanguage,
		"target_language", cfg.Conversation.TargetLanguage,
		"suggestion_delay", cfg.Suggestion.Delay,
	)
	return a, nil
}

func (a *App) initDriver() error {
	if a.driver != nil {
		return nil
	}
	switch a.cfg.Recording.Source {
	case config.SourceFile:
		d, err := capture.NewFileDriver(a.cfg.Recording.File)
		if err != nil {
			return fmt.Errorf("app: capture driver: %w", err)
		}
		a.driver = d
	default:
		a.driver = a.bridge.Microphone()
	}
	return nil
}

func (a *App) initBackend() error {
	bc := a.cfg.Backend
	opts := []backend.Option{
		backend.WithTimeout(bc.Timeout),
		backend.WithMetrics(a.metrics),
	}
	if a.httpClient != nil {
		opts = append(opts, backend.WithHTTPClient(a.httpClient))
	}
	for k, v := range bc.Headers {
		opts = append(opts, backend.WithHeader(k, v))
	}
	if bc.CircuitBreaker.MaxFailures >= 0 {
		a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "backend",
			MaxFailures:  bc.CircuitBreaker.MaxFailures,
			ResetTimeout: bc.CircuitBreaker.ResetTimeout,
			IsFailure:    backend.TripsBreaker,
			OnStateChange: func(from, to resilience.State) {
				slog.Warn("backend circuit breaker state changed", "from", from, "to", to)
			},
		})
		opts = append(opts, backend.WithCircuitBreaker(a.breaker))
	}

	c, err := backend.New(bc.URL, opts...)
	if err != nil {
		return fmt.Errorf("app: backend client: %w", err)
	}
	a.client = c
	return nil
}

func (a *App) buildSinks() (turn.Sinks, error) {
	sinks := []turn.Sinks{turn.All(a.bridge)}
	if a.cfg.UI.LogEvents {
		sinks = append(sinks, turn.All(ui.LogSink{}))
	}
	if dir := a.cfg.UI.ReplyDir; dir != "" {
		rd, err := ui.NewReplyDir(dir)
		if err != nil {
			return turn.Sinks{}, fmt.Errorf("app: %w", err)
		}
		sinks = append(sinks, turn.Sinks{Playback: rd})
	}
	return turn.Combine(sinks...), nil
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	checks := []health.Checker{
		health.CaptureDevice(a.driver),
		{Name: "ui", Check: a.bridge.Ready},
	}
	if a.breaker != nil {
		checks = append(checks, health.Breaker(a.breaker))
	}
	health.New(checks...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/ui", a.bridge)
	a.registerControl(mux)

	return observe.Middleware(a.metrics)(mux)
}

// Handler returns the HTTP handler serving health, metrics, the UI websocket
// and the control API.
func (a *App) Handler() http.Handler { return a.handler }

// Orchestrator returns the turn orchestrator.
func (a *App) Orchestrator() *turn.Orchestrator { return a.orch }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and ticks the orchestrator until ctx is cancelled. It
// returns nil after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		return a.orch.Run(gctx, a.cfg.Server.TickInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.bridge.Close()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	slog.Info("app running", "addr", ln.Addr().String())
	return g.Wait()
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a config change. Changes
// that need a restart are logged.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SuggestionDelayChanged {
		a.timer.SetDelay(d.NewSuggestionDelay)
		slog.Info("suggestion delay changed", "delay", d.NewSuggestionDelay)
	}
	if d.LanguagesChanged {
		if err := a.orch.SetLanguages(d.NewInputLanguage, d.NewTargetLanguage); err != nil {
			slog.Warn("cannot apply reloaded languages", "err", err)
		} else {
			slog.Info("languages changed", "input", d.NewInputLanguage, "target", d.NewTargetLanguage)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "fields", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown disconnects UI clients, cancels a recording in progress and waits
// for an in-flight turn until ctx is done.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")
		a.bridge.Close()
		if err = a.orch.Close(ctx); err != nil {
			slog.Warn("turn still in flight at shutdown", "err", err)
			return
		}
		slog.Info("shutdown complete")
	})
	return err
}
