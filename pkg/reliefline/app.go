// Package reliefline wires the relief line together: config, logging,
// metrics, the ticket sink and the HTTP server that bridges each call.
package reliefline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/harunnryd/reliefline/pkg/bridge"
	"github.com/harunnryd/reliefline/pkg/configutil"
	"github.com/harunnryd/reliefline/pkg/errorsx"
	"github.com/harunnryd/reliefline/pkg/logging"
	"github.com/harunnryd/reliefline/pkg/metrics"
	"github.com/harunnryd/reliefline/pkg/observers"
	"github.com/harunnryd/reliefline/pkg/realtime"
	"github.com/harunnryd/reliefline/pkg/redact"
	"github.com/harunnryd/reliefline/pkg/runner"
	"github.com/harunnryd/reliefline/pkg/server"
	"github.com/harunnryd/reliefline/pkg/telephony"
	"github.com/harunnryd/reliefline/pkg/ticket"
	"github.com/harunnryd/reliefline/pkg/transcript"
)

// AIDialer opens the AI leg of a call.
type AIDialer func(ctx context.Context, cfg realtime.Config) (bridge.AIChannel, error)

type AppOptions struct {
	Config    Config
	Providers *ProviderRegistry
	// Store replaces the badger store built from ticket config.
	Store  ticket.Store
	DialAI AIDialer
	Logger *slog.Logger
	// Banner receives the startup banner; nil means stdout.
	Banner io.Writer
}

type App struct {
	cfg      Config
	logger   *slog.Logger
	obs      metrics.Observer
	asyncObs *metrics.AsyncObserver
	closers  []io.Closer
	store    ticket.Store
	sink     *transcript.AsyncSink
	server   *server.Server
	session  bridge.SessionOptions
	realtime realtime.Config
	dialAI   AIDialer
	banner   io.Writer
}

func NewApp(opts AppOptions) (*App, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.InitLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	logger.Info("reliefline_init",
		"environment", cfg.Environment,
		"addr", cfg.Server.Addr(),
		"public_url", cfg.Server.PublicURL,
		"realtime_model", cfg.OpenAI.Model,
		"classifier", cfg.Ticket.Classifier.Provider,
		"signature_validation", cfg.Twilio.AuthToken != "",
	)

	var obsList []metrics.Observer
	var metricsHandler http.Handler
	if cfg.Observability.MetricsEnabled {
		prom := observers.NewPrometheusObserver(nil)
		obsList = append(obsList, prom)
		metricsHandler = prom.Handler()
	}
	sampled := func(inner metrics.Observer) metrics.Observer {
		return metrics.NewSamplingObserver(inner, cfg.Observability.SampleEvery, metrics.EventMediaIn, metrics.EventAudioOut)
	}
	if cfg.Observability.LogEvents {
		obsList = append(obsList, sampled(observers.NewLoggerObserver(logger)))
	}
	if cfg.Observability.Latency {
		obsList = append(obsList, observers.NewLatencyObserver(logger))
	}
	var closers []io.Closer
	if dir := cfg.Observability.TimelineDir; dir != "" {
		timeline := observers.NewTimelineObserver(dir)
		obsList = append(obsList, sampled(timeline))
		closers = append(closers, timeline)
	}
	if path := cfg.Observability.JSONLPath; path != "" {
		f, err := openEventLog(path)
		if err != nil {
			closeAll(nil, closers)
			return nil, errorsx.Wrap(err, errorsx.ReasonConfig)
		}
		obsList = append(obsList, sampled(metrics.NewJSONLObserver(f)))
		closers = append(closers, f)
	}
	var obs metrics.Observer = metrics.NoopObserver{}
	var asyncObs *metrics.AsyncObserver
	if len(obsList) > 0 {
		asyncObs = metrics.NewAsyncObserver(observers.NewMultiObserver(obsList...), cfg.Observability.EventBuffer)
		obs = asyncObs
	}

	providers := opts.Providers
	if providers == nil {
		providers = NewProviderRegistry()
	}
	classifier, err := providers.BuildClassifier(cfg.Ticket.Classifier.Provider, cfg)
	if err != nil {
		closeAll(asyncObs, closers)
		return nil, errorsx.Wrap(err, errorsx.ReasonConfig)
	}

	store := opts.Store
	if store == nil {
		store, err = ticket.OpenBadger(ticket.BadgerOptions{
			Dir:      cfg.Ticket.StoreDir,
			InMemory: cfg.Ticket.InMemory,
			Logger:   logger,
		})
		if err != nil {
			closeAll(asyncObs, closers)
			return nil, err
		}
	}
	service := ticket.NewService(classifier, store, obs, logger)
	sink := transcript.NewAsyncSink(service, configutil.Millis(cfg.Ticket.DeliveryTimeoutMS, 0), logger)

	dialAI := opts.DialAI
	if dialAI == nil {
		dialAI = func(ctx context.Context, rc realtime.Config) (bridge.AIChannel, error) {
			conn, err := realtime.Dial(ctx, rc)
			if err != nil {
				return nil, err
			}
			return conn, nil
		}
	}
	banner := opts.Banner
	if banner == nil {
		banner = os.Stdout
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		obs:      obs,
		asyncObs: asyncObs,
		closers:  closers,
		store:    store,
		sink:     sink,
		session: bridge.SessionOptions{
			Voice:                   cfg.OpenAI.Voice,
			Instructions:            cfg.OpenAI.Instructions,
			Greeting:                cfg.OpenAI.Greeting,
			AudioFormat:             cfg.OpenAI.AudioFormat,
			Temperature:             cfg.OpenAI.Temperature,
			InputTranscriptionModel: cfg.OpenAI.InputTranscriptionModel,
		},
		realtime: realtime.Config{
			URL:              cfg.OpenAI.RealtimeURL,
			APIKey:           cfg.OpenAI.APIKey,
			Model:            cfg.OpenAI.Model,
			Organization:     cfg.OpenAI.Organization,
			HandshakeTimeout: configutil.Millis(cfg.OpenAI.HandshakeTimeoutMS, 0),
			WriteTimeout:     configutil.Millis(cfg.OpenAI.WriteTimeoutMS, 0),
		},
		dialAI: dialAI,
		banner: banner,
	}
	a.server = server.New(server.Config{
		Addr:           cfg.Server.Addr(),
		PublicURL:      cfg.Server.PublicURL,
		VoicePath:      cfg.Server.VoicePath,
		StreamPath:     cfg.Server.StreamPath,
		StatusPath:     cfg.Server.StatusPath,
		VoiceGreeting:  cfg.Twilio.VoiceGreeting,
		AuthToken:      cfg.Twilio.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, a, metricsHandler, obs, logger)
	return a, nil
}

// HandleCall dials the AI leg and bridges it to conn until the call ends.
func (a *App) HandleCall(ctx context.Context, callID string, conn *telephony.Conn) error {
	ai, err := a.dialAI(ctx, a.realtime)
	if err != nil {
		a.logger.ErrorContext(ctx, "realtime_dial_failed", "call_id", callID, errorsx.Attr(err), "error", err.Error())
		return err
	}
	call := bridge.NewCall(bridge.CallConfig{
		ID:        callID,
		Telephony: conn,
		AI:        ai,
		Sink:      a.sink,
		Session:   a.session,
		Observer:  a.obs,
		Logger:    a.logger,
	})
	return call.Run(ctx)
}

// Handler exposes the routed HTTP surface without listening.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

func (a *App) Store() ticket.Store {
	return a.store
}

// Run serves until ctx ends, then drains calls and pending tickets.
func (a *App) Run(ctx context.Context) error {
	r := runner.NewLifecycleRunner(runner.Options{
		Drainer:      runner.DrainFunc(a.Drain),
		DrainTimeout: configutil.Millis(a.cfg.Server.DrainTimeoutMS, 0),
		Banner:       a.banner,
		Title:        "RELIEFLINE",
		Logger:       a.logger,
		Hooks: runner.Hooks{
			// The listener outlives ctx so draining calls keep their sockets.
			OnStart: func(ctx context.Context) error {
				return a.server.Start(context.WithoutCancel(ctx))
			},
			OnStop: func(ctx context.Context) {
				_ = a.server.Shutdown(ctx)
				a.Close()
			},
		},
	})
	return r.Run(ctx)
}

// Drain stops accepting streams, waits for active calls, then for ticket
// deliveries still in flight.
func (a *App) Drain(ctx context.Context) error {
	if err := a.server.Drain(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		a.sink.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes metrics and closes the store.
func (a *App) Close() {
	if a.asyncObs != nil {
		a.asyncObs.Close()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("event_log_close_failed", "error", err.Error())
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("ticket_store_close_failed", "error", err.Error())
	}
}

func openEventLog(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("event log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("event log: %w", err)
	}
	return f, nil
}

func closeAll(async *metrics.AsyncObserver, closers []io.Closer) {
	if async != nil {
		async.Close()
	}
	for _, c := range closers {
		_ = c.Close()
	}
}
