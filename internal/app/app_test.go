package app

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/identia-project/identia/internal/backend"
	"github.com/identia-project/identia/internal/config"
	"github.com/identia-project/identia/internal/intent"
	"github.com/identia-project/identia/internal/observe"
	"github.com/identia-project/identia/internal/tracking"
	sttmock "github.com/identia-project/identia/pkg/provider/stt/mock"
	ttsmock "github.com/identia-project/identia/pkg/provider/tts/mock"
)

// testMetrics returns a Metrics instance backed by a ManualReader so tests
// never touch the global OTel providers or the default Prometheus registry.
func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestApp(t *testing.T, cfg *config.Config, providers *Providers, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{WithMetrics(testMetrics(t))}, opts...)
	a, err := New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func TestNewTextOnlyDefaults(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &config.Config{}, &Providers{})

	if a.Manager() == nil {
		t.Fatal("Manager is nil")
	}
	if a.controller != nil {
		t.Error("voice controller built without providers")
	}
	if a.feed != nil {
		t.Error("audio feed built without providers")
	}
	if a.srv == nil {
		t.Error("kiosk server not built")
	}
	if a.metricsSrv != nil {
		t.Error("metrics server built without observe.metrics_addr")
	}
	if a.pg != nil {
		t.Error("postgres store built without a DSN")
	}
	if a.remote != nil {
		t.Error("remote backend client built without a base URL")
	}
}

func TestNewVoiceProvidersBuildController(t *testing.T) {
	t.Parallel()

	providers := &Providers{
		STT: &sttmock.Provider{},
		TTS: &ttsmock.Provider{},
	}
	a := newTestApp(t, &config.Config{}, providers)

	if a.controller == nil {
		t.Fatal("voice controller not built")
	}
	if a.feed == nil {
		t.Fatal("audio feed not built")
	}
}

func TestNewSTTAloneStaysTextOnly(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &config.Config{}, &Providers{STT: &sttmock.Provider{}})

	if a.controller != nil {
		t.Error("voice controller built with only an STT provider")
	}
}

func TestNewMetricsServer(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Observe.MetricsAddr = "127.0.0.1:0"
	a := newTestApp(t, cfg, &Providers{})

	if a.metricsSrv == nil {
		t.Fatal("metrics server not built")
	}
	if got := a.metricsSrv.Addr; got != "127.0.0.1:0" {
		t.Errorf("metrics addr = %q, want %q", got, "127.0.0.1:0")
	}
}

func TestNewRemoteBackendFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Backend.BaseURL = "http://backend.invalid"
	a := newTestApp(t, cfg, &Providers{})

	if a.remote == nil {
		t.Fatal("remote backend client not built")
	}
}

func TestNewInjectedDoubles(t *testing.T) {
	t.Parallel()

	client := backend.NewLocal(intent.New())
	store := tracking.NewMemoryStore()
	a := newTestApp(t, &config.Config{}, &Providers{},
		WithBackendClient(client),
		WithTrackingStore(store),
	)

	if a.client != client {
		t.Error("injected backend client not used")
	}
	if a.store != store {
		t.Error("injected tracking store not used")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &config.Config{}, &Providers{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestAudioFeedFanOut(t *testing.T) {
	t.Parallel()

	feed := newAudioFeed()

	var a, b [][]byte
	cancelA := feed.Subscribe(func(chunk []byte) { a = append(a, chunk) })
	cancelB := feed.Subscribe(func(chunk []byte) { b = append(b, chunk) })

	feed.publish([]byte{1})
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("after first publish: a=%d b=%d chunks, want 1 each", len(a), len(b))
	}

	cancelA()
	feed.publish([]byte{2})
	if len(a) != 1 {
		t.Errorf("cancelled subscriber received %d chunks, want 1", len(a))
	}
	if len(b) != 2 {
		t.Errorf("active subscriber received %d chunks, want 2", len(b))
	}

	cancelB()
	cancelB() // double cancel is a no-op
	feed.publish([]byte{3})
	if len(b) != 2 {
		t.Errorf("after cancel: subscriber received %d chunks, want 2", len(b))
	}
}
