// Package app wires all IDENTIA subsystems into a running kiosk service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the WebSocket gateway until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithBackendClient,
// WithTrackingStore, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/identia-project/identia/internal/assist"
	"github.com/identia-project/identia/internal/backend"
	"github.com/identia-project/identia/internal/config"
	"github.com/identia-project/identia/internal/gateway"
	"github.com/identia-project/identia/internal/health"
	"github.com/identia-project/identia/internal/intent"
	"github.com/identia-project/identia/internal/observe"
	"github.com/identia-project/identia/internal/privacy"
	"github.com/identia-project/identia/internal/resilience"
	"github.com/identia-project/identia/internal/session"
	"github.com/identia-project/identia/internal/tracking"
	trackingpg "github.com/identia-project/identia/internal/tracking/postgres"
	"github.com/identia-project/identia/internal/transcript"
	"github.com/identia-project/identia/internal/voice"
	"github.com/identia-project/identia/pkg/provider/stt"
	"github.com/identia-project/identia/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT stt.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes and runs the kiosk HTTP surface.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	router     *intent.Router
	client     backend.Client
	remote     *backend.HTTPClient
	store      tracking.Store
	pg         *trackingpg.Store
	issuer     *tracking.Issuer
	responder  assist.Responder
	controller *voice.Controller
	feed       *audioFeed
	manager    *session.Manager
	metrics    *observe.Metrics

	srv        *http.Server
	metricsSrv *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackendClient injects a backend client instead of building the
// remote-with-local-fallback composition from config.
func WithBackendClient(c backend.Client) Option {
	return func(a *App) { a.client = c }
}

// WithTrackingStore injects a tramite store instead of connecting to
// Postgres (or creating the in-memory store).
func WithTrackingStore(s tracking.Store) Option {
	return func(a *App) { a.store = s }
}

// WithResponder injects a responder instead of assembling the chain.
func WithResponder(r assist.Responder) Option {
	return func(a *App) { a.responder = r }
}

// WithMetrics injects a metrics instance instead of using the global
// meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers
// struct comes from main.go (populated via the config registry). Missing
// voice providers degrade the kiosk to text-only operation; a missing
// backend URL or Postgres DSN degrades to the local stand-ins.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		router:    intent.New(),
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initObserve(ctx); err != nil {
		return nil, fmt.Errorf("app: init observability: %w", err)
	}
	a.initBackend()
	if err := a.initTracking(ctx); err != nil {
		return nil, fmt.Errorf("app: init tracking: %w", err)
	}
	if err := a.initAssist(); err != nil {
		return nil, fmt.Errorf("app: init assistant: %w", err)
	}
	a.initVoice()
	a.initSession()
	a.initHTTP()

	return a, nil
}

// initObserve sets up the OTel providers and the metrics instruments.
// An injected metrics instance means the caller owns the OTel pipeline,
// so the global provider setup is skipped.
func (a *App) initObserve(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "identia",
		ServiceVersion: Version,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		return shutdown(context.Background())
	})

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// initBackend composes the government services client: the remote HTTP
// client when a base URL is configured, always backed by the local
// stand-in behind a circuit breaker.
func (a *App) initBackend() {
	if a.client != nil {
		return
	}
	local := backend.NewLocal(a.router)

	var remote backend.Client
	if a.cfg.Backend.BaseURL != "" {
		var httpOpts []backend.HTTPOption
		if a.cfg.Backend.TimeoutSeconds > 0 {
			httpOpts = append(httpOpts,
				backend.WithHTTPTimeout(time.Duration(a.cfg.Backend.TimeoutSeconds)*time.Second))
		}
		r, err := backend.NewHTTPClient(a.cfg.Backend.BaseURL, httpOpts...)
		if err != nil {
			slog.Warn("backend client misconfigured, running on the local stand-in", "error", err)
		} else {
			a.remote = r
			remote = r
		}
	} else {
		slog.Info("no backend URL configured, running on the local stand-in")
	}

	cbCfg := resilience.CircuitBreakerConfig{
		Name:        "backend",
		MaxFailures: a.cfg.Backend.MaxFailures,
	}
	if a.cfg.Backend.ResetSeconds > 0 {
		cbCfg.ResetTimeout = time.Duration(a.cfg.Backend.ResetSeconds) * time.Second
	}
	a.client = backend.NewFallback(remote, local, cbCfg)
}

// initTracking connects the tramite store and builds the PIN issuer.
func (a *App) initTracking(ctx context.Context) error {
	if a.store == nil {
		if dsn := a.cfg.Tracking.PostgresDSN; dsn != "" {
			pg, err := trackingpg.NewStore(ctx, dsn)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			a.pg = pg
			a.store = pg
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
		} else {
			slog.Info("no postgres DSN configured, tramite records are in-memory only")
			a.store = tracking.NewMemoryStore()
		}
	}
	a.issuer = tracking.NewIssuer(a.client, a.store)
	return nil
}

// initAssist assembles the responder chain: backend first, then the
// configured LLM, then the deterministic intent router as the floor.
func (a *App) initAssist() error {
	if a.responder != nil {
		return nil
	}
	chain := assist.NewChain(assist.NewBackendResponder(a.client), "backend", resilience.FallbackConfig{})

	if name := a.cfg.Assistant.Name; name != "" {
		var llmOpts []anyllmlib.Option
		if a.cfg.Assistant.APIKey != "" {
			llmOpts = append(llmOpts, anyllmlib.WithAPIKey(a.cfg.Assistant.APIKey))
		}
		if a.cfg.Assistant.BaseURL != "" {
			llmOpts = append(llmOpts, anyllmlib.WithBaseURL(a.cfg.Assistant.BaseURL))
		}
		llm, err := assist.NewLLMResponder(name, a.cfg.Assistant.Model, a.router, llmOpts...)
		if err != nil {
			return err
		}
		// The LLM is the only responder leaving the kiosk with free-form
		// text, so it alone goes behind the anonymizer.
		chain.Add("llm", assist.NewPrivacyResponder(llm, privacy.New()))
	}

	chain.Add("local", assist.NewRouterResponder(a.router))
	a.responder = chain
	return nil
}

// initVoice builds the voice controller when both providers are present.
// Without them the kiosk still runs, text-only.
func (a *App) initVoice() {
	if a.providers == nil || a.providers.STT == nil || a.providers.TTS == nil {
		slog.Info("voice providers not configured, running text-only")
		return
	}
	a.feed = newAudioFeed()

	var vOpts []voice.Option
	if vc := a.cfg.Voice; vc.SampleRate > 0 || vc.Language != "" {
		sc := stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "es"}
		if vc.SampleRate > 0 {
			sc.SampleRate = vc.SampleRate
		}
		if vc.Language != "" {
			sc.Language = vc.Language
		}
		vOpts = append(vOpts, voice.WithStreamConfig(sc))
	}
	if vc := a.cfg.Voice; vc.VoiceID != "" || vc.SpeedFactor != 0 {
		vp := tts.VoiceProfile{ID: "nova", SpeedFactor: 1.0}
		if vc.VoiceID != "" {
			vp.ID = vc.VoiceID
		}
		if vc.SpeedFactor != 0 {
			vp.SpeedFactor = vc.SpeedFactor
		}
		vOpts = append(vOpts, voice.WithVoice(vp))
	}

	// The manager does not exist yet; the closure resolves it at speech
	// end, long after wiring completes.
	vOpts = append(vOpts, voice.WithSpeechEnded(func() {
		if a.manager != nil {
			a.manager.NotifySpeechEnd()
		}
	}))
	a.controller = voice.NewController(a.providers.STT, a.providers.TTS, a.feed.publish, vOpts...)
	a.closers = append(a.closers, func() error {
		a.controller.Close()
		return nil
	})
}

// initSession creates the conversation manager.
func (a *App) initSession() {
	var mOpts []session.Option
	if a.controller != nil {
		mOpts = append(mOpts, session.WithSpeaker(a.controller))
	}
	if ms := a.cfg.Session.CalendarDelayMS; ms > 0 {
		mOpts = append(mOpts, session.WithCalendarDelay(time.Duration(ms)*time.Millisecond))
	}
	a.manager = session.NewManager(a.client, a.responder, a.issuer, mOpts...)
	a.closers = append(a.closers, func() error {
		a.manager.Close()
		return nil
	})
}

// initHTTP builds the kiosk HTTP surface and the optional metrics server.
func (a *App) initHTTP() {
	var listener gateway.Listener
	var feed gateway.AudioFeed
	if a.controller != nil {
		listener = &voiceListener{
			controller: a.controller,
			manager:    a.manager,
			corrector:  transcript.NewCorrector(transcript.ProcedureVocabulary()),
		}
		feed = a.feed
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway.NewHandler(a.manager, listener, feed))

	var checkers []health.Checker
	if a.pg != nil {
		checkers = append(checkers, health.Postgres(a.pg))
	}
	if a.remote != nil {
		checkers = append(checkers, health.Backend(a.remote.Healthz))
	}
	health.New(checkers...).Register(mux)

	a.srv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if addr := a.cfg.Observe.MetricsAddr; addr != "" {
		mmux := http.NewServeMux()
		mmux.Handle("/metrics", promhttp.Handler())
		a.metricsSrv = &http.Server{
			Addr:              addr,
			Handler:           mmux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
}

// Manager exposes the conversation manager, mainly for tests.
func (a *App) Manager() *session.Manager {
	return a.manager
}

// Run starts the session and serves the kiosk until ctx is cancelled or a
// listener fails. It does not call Shutdown; main owns that.
func (a *App) Run(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("app: start session: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		var err error
		if tlsCfg := a.cfg.Server.TLS; tlsCfg != nil {
			err = a.srv.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			err = a.srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("app: serve %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}()
	if a.metricsSrv != nil {
		go func() {
			if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("app: serve metrics %s: %w", a.metricsSrv.Addr, err)
			}
		}()
	}

	slog.Info("identia running",
		"addr", a.cfg.Server.ListenAddr,
		"voice", a.controller != nil,
		"backend", a.remote != nil,
		"postgres", a.pg != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP servers and tears down all subsystems in
// init order. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop accepting connections first; in-flight sessions get the
		// remaining deadline to drain.
		if a.srv != nil {
			if err := a.srv.Shutdown(ctx); err != nil {
				slog.Warn("server shutdown error", "err", err)
			}
		}
		if a.metricsSrv != nil {
			if err := a.metricsSrv.Shutdown(ctx); err != nil {
				slog.Warn("metrics server shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
