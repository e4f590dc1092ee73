package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cronverge/cronverge/pkg/engine"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing service name",
			mutate:  func(c *Config) { c.ServiceName = "" },
			wantErr: true,
		},
		{
			name:    "missing service version",
			mutate:  func(c *Config) { c.ServiceVersion = "" },
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name: "bad exporter when tracing enabled",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "jaeger"
			},
			wantErr: true,
		},
		{
			name: "bad exporter ignored when tracing disabled",
			mutate: func(c *Config) {
				c.Tracing.Enabled = false
				c.Tracing.Exporter = "jaeger"
			},
			wantErr: false,
		},
		{
			name: "otlp requires endpoint",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "otlp"
				c.Tracing.Endpoint = ""
			},
			wantErr: true,
		},
		{
			name:    "sampling rate above one",
			mutate:  func(c *Config) { c.Tracing.SamplingRate = 1.5 },
			wantErr: true,
		},
		{
			name: "metrics enabled without address",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.ListenAddress = ""
			},
			wantErr: true,
		},
		{
			name: "events enabled with zero buffer",
			mutate: func(c *Config) {
				c.Events.Enabled = true
				c.Events.BufferSize = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestConfig_Presets(t *testing.T) {
	prod := ProductionConfig()
	if prod.Logging.Format != "json" {
		t.Errorf("Expected json logs in production, got %s", prod.Logging.Format)
	}
	if prod.Tracing.Exporter != "otlp" {
		t.Errorf("Expected otlp exporter in production, got %s", prod.Tracing.Exporter)
	}
	if prod.Tracing.SamplingRate != 0.1 {
		t.Errorf("Expected 10%% sampling in production, got %f", prod.Tracing.SamplingRate)
	}

	dev := DevelopmentConfig()
	if dev.Logging.Level != "debug" {
		t.Errorf("Expected debug logs in development, got %s", dev.Logging.Level)
	}
	if dev.Tracing.Exporter != "stdout" {
		t.Errorf("Expected stdout exporter in development, got %s", dev.Tracing.Exporter)
	}
	if dev.Tracing.SamplingRate != 1.0 {
		t.Errorf("Expected full sampling in development, got %f", dev.Tracing.SamplingRate)
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}

func TestMetrics_RecordRun(t *testing.T) {
	cfg := DefaultConfig().Metrics
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordRun(&engine.ConvergenceReport{
		RunID:      "run-1",
		Deployment: "nightly-report",
		Status:     engine.StatusConverged,
		Duration:   2 * time.Second,
		Summary:    engine.ReportSummary{Total: 6, Applied: 6, Noop: 4},
	})

	body := scrape(t, m)
	for _, want := range []string{
		`cronverge_runs_total{status="converged"} 1`,
		`cronverge_run_duration_seconds_count{status="converged"} 1`,
		`cronverge_drift_detected_total{deployment="nightly-report"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Scrape missing %q", want)
		}
	}
}

func TestMetrics_RecordRun_NoDrift(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	// All-noop plan: nothing diverged, so no drift sample.
	m.RecordRun(&engine.ConvergenceReport{
		RunID:      "run-1",
		Deployment: "nightly-report",
		Status:     engine.StatusConverged,
		Summary:    engine.ReportSummary{Total: 5, Applied: 5, Noop: 5},
	})

	if body := scrape(t, m); strings.Contains(body, "cronverge_drift_detected_total") {
		t.Error("Expected no drift sample for an all-noop run")
	}
}

func TestMetrics_RecordAction(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordAction(engine.ActionResult{
		Action:   engine.Action{Kind: engine.ActionPutScheduleRule, Facet: engine.FacetSchedule},
		Outcome:  engine.OutcomeApplied,
		Attempts: 1,
		Duration: 80 * time.Millisecond,
	})
	m.RecordAction(engine.ActionResult{
		Action:   engine.Action{Kind: engine.ActionBindTarget, Facet: engine.FacetTarget},
		Outcome:  engine.OutcomeFailed,
		Attempts: 3,
		Error:    engine.NewThrottledError("rate exceeded", nil),
		Duration: 2 * time.Second,
	})
	m.RecordRetry(engine.ActionBindTarget)
	m.RecordRetry(engine.ActionBindTarget)

	body := scrape(t, m)
	for _, want := range []string{
		`cronverge_actions_total{kind="put_schedule_rule",outcome="applied"} 1`,
		`cronverge_actions_total{kind="bind_target",outcome="failed"} 1`,
		`cronverge_action_retries_total{kind="bind_target"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Scrape missing %q", want)
		}
	}
}

func TestMetrics_RecordObservation(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordObservation("nightly-report", nil)
	m.RecordObservation("nightly-report", engine.NewTransientError("timeout", nil))

	body := scrape(t, m)
	for _, want := range []string{
		`cronverge_observations_total{result="ok"} 1`,
		`cronverge_observations_total{result="error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Scrape missing %q", want)
		}
	}
}

func TestMetrics_RecordProviderCall(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordProviderCall("PutRule", nil, 75*time.Millisecond)
	m.RecordProviderCall("PutRule", engine.NewThrottledError("rate exceeded", nil), 10*time.Millisecond)

	body := scrape(t, m)
	for _, want := range []string{
		`cronverge_provider_calls_total{operation="PutRule",result="ok"} 1`,
		`cronverge_provider_calls_total{operation="PutRule",result="throttled"} 1`,
		`cronverge_provider_call_duration_seconds_count{operation="PutRule"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Scrape missing %q", want)
		}
	}
}

func TestMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	// Every method must be a safe no-op on a disabled instance.
	m.RecordRun(&engine.ConvergenceReport{Status: engine.StatusConverged})
	m.RecordAction(engine.ActionResult{})
	m.RecordRetry(engine.ActionBindTarget)
	m.RecordObservation("x", nil)
	m.RecordProviderCall("GetRole", nil, time.Millisecond)
	m.RunStarted()
	m.RunFinished()

	if err := m.StartMetricsServer(); err != nil {
		t.Errorf("Expected StartMetricsServer to no-op when disabled, got: %v", err)
	}
}

type captureSink struct {
	mu     sync.Mutex
	events []engine.Event
}

func (s *captureSink) Publish(ctx context.Context, event *engine.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *captureSink) all() []engine.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestBroadcaster_SyncDelivery(t *testing.T) {
	b, err := NewBroadcaster(EventsConfig{Enabled: true, BufferSize: 10, EnableAsync: false})
	if err != nil {
		t.Fatalf("NewBroadcaster failed: %v", err)
	}

	sink := &captureSink{}
	b.AddSink(sink)

	var seen []engine.Event
	b.Subscribe(func(ev engine.Event) {
		seen = append(seen, ev)
	}, nil)

	ctx := context.Background()
	if err := b.Publish(ctx, &engine.Event{Type: engine.EventTypeRunStarted, RunID: "run-1", Message: "started"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := b.Publish(ctx, &engine.Event{Type: engine.EventTypeDriftDetected, RunID: "run-1", Message: "drift"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got := sink.all()
	if len(got) != 2 {
		t.Fatalf("Expected 2 sink events, got %d", len(got))
	}
	if len(seen) != 2 {
		t.Fatalf("Expected 2 subscriber events, got %d", len(seen))
	}

	first := got[0]
	if first.ID == "" {
		t.Error("Expected event ID to be filled")
	}
	if first.Timestamp.IsZero() {
		t.Error("Expected event timestamp to be filled")
	}
	if first.Level != "info" {
		t.Errorf("Expected level info for run_started, got %s", first.Level)
	}
	if got[1].Level != "warning" {
		t.Errorf("Expected level warning for drift_detected, got %s", got[1].Level)
	}
}

func TestBroadcaster_PreservesCallerFields(t *testing.T) {
	b, err := NewBroadcaster(EventsConfig{Enabled: true, BufferSize: 10, EnableAsync: false})
	if err != nil {
		t.Fatalf("NewBroadcaster failed: %v", err)
	}
	sink := &captureSink{}
	b.AddSink(sink)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	err = b.Publish(context.Background(), &engine.Event{
		ID:        "evt-1",
		Type:      engine.EventTypeActionFailed,
		Timestamp: ts,
		RunID:     "run-1",
		Level:     "error",
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got := sink.all()[0]
	if got.ID != "evt-1" {
		t.Errorf("Expected caller ID preserved, got %s", got.ID)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Expected caller timestamp preserved, got %v", got.Timestamp)
	}
	if got.Level != "error" {
		t.Errorf("Expected caller level preserved, got %s", got.Level)
	}
}

func TestBroadcaster_AsyncShutdownFlush(t *testing.T) {
	b, err := NewBroadcaster(EventsConfig{Enabled: true, BufferSize: 100, EnableAsync: true})
	if err != nil {
		t.Fatalf("NewBroadcaster failed: %v", err)
	}
	sink := &captureSink{}
	b.AddSink(sink)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := b.Publish(ctx, &engine.Event{Type: engine.EventTypeObserved, RunID: "run-1"}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := b.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if got := len(sink.all()); got != 5 {
		t.Errorf("Expected 5 events after shutdown flush, got %d", got)
	}
}

func TestBroadcaster_GlobalFilter(t *testing.T) {
	b, err := NewBroadcaster(EventsConfig{Enabled: true, BufferSize: 10, EnableAsync: false})
	if err != nil {
		t.Fatalf("NewBroadcaster failed: %v", err)
	}
	sink := &captureSink{}
	b.AddSink(sink)
	b.AddFilter(FilterByLevel("warning"))

	ctx := context.Background()
	b.Publish(ctx, &engine.Event{Type: engine.EventTypeRunStarted})
	b.Publish(ctx, &engine.Event{Type: engine.EventTypeDriftDetected})

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("Expected 1 event past the filter, got %d", len(got))
	}
	if got[0].Type != engine.EventTypeDriftDetected {
		t.Errorf("Expected drift event past the filter, got %s", got[0].Type)
	}
}

func TestBroadcaster_Disabled(t *testing.T) {
	b, err := NewBroadcaster(EventsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewBroadcaster failed: %v", err)
	}
	sink := &captureSink{}
	b.AddSink(sink)

	if err := b.Publish(context.Background(), &engine.Event{Type: engine.EventTypeRunStarted}); err != nil {
		t.Errorf("Expected disabled publish to no-op, got: %v", err)
	}
	if len(sink.all()) != 0 {
		t.Error("Expected no delivery when disabled")
	}
	if err := b.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected disabled shutdown to no-op, got: %v", err)
	}
}

func TestEventFilters(t *testing.T) {
	warn := engine.Event{Type: engine.EventTypeDriftDetected, Level: "warning", RunID: "run-1", Deployment: "a"}
	info := engine.Event{Type: engine.EventTypeObserved, Level: "info", RunID: "run-2", Deployment: "b"}

	tests := []struct {
		name   string
		filter EventFilter
		event  engine.Event
		want   bool
	}{
		{"level passes equal", FilterByLevel("warning"), warn, true},
		{"level rejects lower", FilterByLevel("warning"), info, false},
		{"level passes higher", FilterByLevel("info"), warn, true},
		{"type matches", FilterByType(engine.EventTypeDriftDetected), warn, true},
		{"type rejects", FilterByType(engine.EventTypeDriftDetected), info, false},
		{"run matches", FilterByRunID("run-1"), warn, true},
		{"run rejects", FilterByRunID("run-1"), info, false},
		{"deployment matches", FilterByDeployment("a"), warn, true},
		{"deployment rejects", FilterByDeployment("a"), info, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter(tt.event); got != tt.want {
				t.Errorf("filter(%s) = %v, want %v", tt.event.Type, got, tt.want)
			}
		})
	}
}

// fakeProvider records the operations invoked through the instrumented
// wrapper and fails the ones listed in failOps.
type fakeProvider struct {
	calls   []string
	failOps map[string]error
}

func (f *fakeProvider) fail(op string) error {
	f.calls = append(f.calls, op)
	if err, ok := f.failOps[op]; ok {
		return err
	}
	return nil
}

func (f *fakeProvider) GetRole(ctx context.Context, req engine.GetRoleRequest) (*engine.ObservedRole, error) {
	if err := f.fail("GetRole"); err != nil {
		return nil, err
	}
	return &engine.ObservedRole{Name: req.RoleName}, nil
}

func (f *fakeProvider) CreateRole(ctx context.Context, req engine.CreateRoleRequest) (*engine.ObservedRole, error) {
	if err := f.fail("CreateRole"); err != nil {
		return nil, err
	}
	return &engine.ObservedRole{Name: req.RoleName}, nil
}

func (f *fakeProvider) PutRolePolicy(ctx context.Context, req engine.PutRolePolicyRequest) error {
	return f.fail("PutRolePolicy")
}

func (f *fakeProvider) GetFunction(ctx context.Context, req engine.GetFunctionRequest) (*engine.ObservedFunction, error) {
	if err := f.fail("GetFunction"); err != nil {
		return nil, err
	}
	return &engine.ObservedFunction{Name: req.FunctionName}, nil
}

func (f *fakeProvider) CreateFunction(ctx context.Context, req engine.CreateFunctionRequest) (*engine.ObservedFunction, error) {
	if err := f.fail("CreateFunction"); err != nil {
		return nil, err
	}
	return &engine.ObservedFunction{Name: req.FunctionName}, nil
}

func (f *fakeProvider) UpdateFunctionCode(ctx context.Context, req engine.UpdateFunctionCodeRequest) (*engine.ObservedFunction, error) {
	if err := f.fail("UpdateFunctionCode"); err != nil {
		return nil, err
	}
	return &engine.ObservedFunction{Name: req.FunctionName}, nil
}

func (f *fakeProvider) UpdateFunctionConfig(ctx context.Context, req engine.UpdateFunctionConfigRequest) (*engine.ObservedFunction, error) {
	if err := f.fail("UpdateFunctionConfig"); err != nil {
		return nil, err
	}
	return &engine.ObservedFunction{Name: req.FunctionName}, nil
}

func (f *fakeProvider) GetRule(ctx context.Context, req engine.GetRuleRequest) (*engine.ObservedRule, error) {
	if err := f.fail("GetRule"); err != nil {
		return nil, err
	}
	return &engine.ObservedRule{Name: req.RuleName}, nil
}

func (f *fakeProvider) PutRule(ctx context.Context, req engine.PutRuleRequest) (*engine.ObservedRule, error) {
	if err := f.fail("PutRule"); err != nil {
		return nil, err
	}
	return &engine.ObservedRule{Name: req.RuleName}, nil
}

func (f *fakeProvider) ListTargets(ctx context.Context, req engine.ListTargetsRequest) ([]engine.ObservedTarget, error) {
	if err := f.fail("ListTargets"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeProvider) PutTargets(ctx context.Context, req engine.PutTargetsRequest) error {
	return f.fail("PutTargets")
}

func (f *fakeProvider) GetFunctionPolicy(ctx context.Context, req engine.GetFunctionPolicyRequest) ([]engine.ObservedPermission, error) {
	if err := f.fail("GetFunctionPolicy"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeProvider) AddPermission(ctx context.Context, req engine.AddPermissionRequest) error {
	return f.fail("AddPermission")
}

func TestInstrumentedProvider(t *testing.T) {
	metrics, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	inner := &fakeProvider{
		failOps: map[string]error{
			"PutTargets": engine.NewThrottledError("rate exceeded", nil),
		},
	}
	provider := NewInstrumentedProvider(inner, "aws", metrics, nil)

	ctx := context.Background()

	role, err := provider.GetRole(ctx, engine.GetRoleRequest{RoleName: "nightly-report-role"})
	if err != nil {
		t.Fatalf("GetRole failed: %v", err)
	}
	if role.Name != "nightly-report-role" {
		t.Errorf("Expected role name to pass through, got %s", role.Name)
	}

	if err := provider.PutTargets(ctx, engine.PutTargetsRequest{RuleName: "r"}); err == nil {
		t.Fatal("Expected PutTargets error to pass through")
	}

	if len(inner.calls) != 2 || inner.calls[0] != "GetRole" || inner.calls[1] != "PutTargets" {
		t.Errorf("Unexpected inner calls: %v", inner.calls)
	}

	body := scrape(t, metrics)
	for _, want := range []string{
		`cronverge_provider_calls_total{operation="GetRole",result="ok"} 1`,
		`cronverge_provider_calls_total{operation="PutTargets",result="throttled"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Scrape missing %q", want)
		}
	}
}

func TestInstrumentedProvider_NilCollectors(t *testing.T) {
	inner := &fakeProvider{}
	provider := NewInstrumentedProvider(inner, "aws", nil, nil)

	if _, err := provider.GetFunction(context.Background(), engine.GetFunctionRequest{FunctionName: "f"}); err != nil {
		t.Fatalf("GetFunction failed: %v", err)
	}
	if len(inner.calls) != 1 {
		t.Errorf("Expected 1 inner call, got %d", len(inner.calls))
	}
}

func TestLogger_Fields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	cfg := &LoggingConfig{Level: "debug", Format: "json", Output: path}

	logger, err := NewLogger(cfg, "cronverge", "test", "test")
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.NewComponentLogger("engine").
		WithRunID("run-1").
		WithDeployment("nightly-report").
		Info().Msg("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Reading log output failed: %v", err)
	}
	line := string(data)

	for _, want := range []string{
		`"service":"cronverge"`,
		`"component":"engine"`,
		`"run_id":"run-1"`,
		`"deployment":"nightly-report"`,
		`"message":"hello"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("Log line missing %q: %s", want, line)
		}
	}
}

func TestLogger_FromContextFallback(t *testing.T) {
	// No logger stored: FromContext falls back to the global logger and
	// must not return nil.
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("Expected fallback logger, got nil")
	}
	logger.Debug().Msg("fallback")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.input); got != tt.want {
			t.Errorf("parseLogLevel(%s) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
