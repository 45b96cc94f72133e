package telemetry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/openfroyo/daylight/pkg/cache"
	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/sky"
)

var (
	_ cache.Recorder = (*Metrics)(nil)
	_ sky.Recorder   = (*Metrics)(nil)
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"development", func(c *Config) { *c = *DevelopmentConfig() }, false},
		{"no service", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, true},
		{"sampling rate", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daylight.log")
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.WithProject("office").WithRunID("r1").Info("Run started")
	logger.Debug("details")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), data)
	}
	for _, want := range []string{`"project":"office"`, `"run_id":"r1"`, `"message":"Run started"`} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("expected %s in %s", want, lines[0])
		}
	}
}

func TestMetrics(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordCacheLookup("smx", true)
	m.RecordCacheLookup("dc", false)
	m.RecordCacheLookup("dc", false)
	m.RecordSunMatrix(3, 5, false)
	m.RecordSunMatrix(3, 5, true)

	step := &engine.CommandStep{Stage: engine.StageMatrix, Program: "rfluxmtx", Status: engine.StepStatusFailed}
	m.RecordStep(step, 2*time.Second, engine.NewArtifactError("boom", nil).WithCode(engine.ErrCodeExternalFailed))
	m.RecordStep(step, time.Second, errors.New("plain"))

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"cache hits", testutil.ToFloat64(m.cacheLookups.WithLabelValues("smx", "hit")), 1},
		{"cache misses", testutil.ToFloat64(m.cacheLookups.WithLabelValues("dc", "miss")), 2},
		{"suns retained", testutil.ToFloat64(m.sunsRetained), 3},
		{"suns skipped", testutil.ToFloat64(m.sunsSkipped), 5},
		{"reused builds", testutil.ToFloat64(m.sunMatrixBuilds.WithLabelValues("true")), 1},
		{"failed steps", testutil.ToFloat64(m.stepsExecuted.WithLabelValues("matrix", "failed")), 2},
		{"artifact errors", testutil.ToFloat64(m.errorsByClass.WithLabelValues("artifact", engine.ErrCodeExternalFailed)), 1},
		{"unknown errors", testutil.ToFloat64(m.errorsByClass.WithLabelValues("unknown", "")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}

	if n, err := testutil.GatherAndCount(m.Registry(), "daylight_cache_lookups_total"); err != nil || n != 2 {
		t.Errorf("expected 2 cache lookup series, got %d (%v)", n, err)
	}
}

func TestMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	// Must not panic.
	m.RecordCacheLookup("dc", true)
	m.RecordSunMatrix(1, 1, false)
	m.RecordRunStarted("office")
	if m.Registry() != nil {
		t.Error("expected no registry when disabled")
	}
	server, err := m.StartMetricsServer()
	if err != nil || server != nil {
		t.Errorf("expected no server, got %v %v", server, err)
	}

	var nilMetrics *Metrics
	nilMetrics.RecordCacheLookup("dc", true)
}

func TestPipelineObserver(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewTracerWithProvider(provider, "test")
	metrics, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	obs := NewPipelineObserver(tracer, metrics)

	ctx := context.Background()
	run := &engine.Run{ID: "r1", PlanID: "p1", Project: "office", Status: engine.RunStatusRunning}
	ok := &engine.CommandStep{ID: "s1", Stage: engine.StageSky, Program: "gendaymtx", Output: "skies/a.smx"}
	bad := &engine.CommandStep{ID: "s2", Stage: engine.StageMatrix, Program: "rfluxmtx", Output: "results/matrix/a.dc"}

	stepCtx := obs.StepStarted(ctx, run, ok)
	if TraceID(stepCtx) == "" {
		t.Error("expected step context to carry a trace")
	}
	ok.Status = engine.StepStatusSucceeded
	obs.StepFinished(stepCtx, run, ok, nil)

	stepCtx = obs.StepStarted(ctx, run, bad)
	bad.Status = engine.StepStatusFailed
	bad.Result = &engine.StepResult{Stderr: "fatal - bad octree", Duration: time.Second}
	obs.StepFinished(stepCtx, run, bad, engine.NewArtifactError("step failed", nil).WithCode(engine.ErrCodeExternalFailed))

	run.Status = engine.RunStatusFailed
	run.Error = "step matrix failed"
	run.Duration = 3 * time.Second
	obs.RunFinished(ctx, run)

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("Expected 3 spans, got %d", len(spans))
	}
	names := []string{spans[0].Name(), spans[1].Name(), spans[2].Name()}
	if strings.Join(names, ",") != "step.sky,step.matrix,run.execute" {
		t.Errorf("unexpected span order %v", names)
	}
	parent := spans[2]
	for _, s := range spans[:2] {
		if s.Parent().SpanID() != parent.SpanContext().SpanID() {
			t.Errorf("step span %s is not a child of the run span", s.Name())
		}
	}
	if spans[1].Status().Code != codes.Error || parent.Status().Code != codes.Error {
		t.Error("expected failed step and run spans to carry an error status")
	}
	if len(spans[1].Events()) == 0 {
		t.Error("expected stderr to be recorded on the failed step span")
	}

	if got := testutil.ToFloat64(metrics.runsCompleted.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected 1 failed run, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.activeRuns); got != 0 {
		t.Errorf("expected no active runs, got %v", got)
	}
}

func TestPipelineObserverEmptyRun(t *testing.T) {
	metrics, _ := NewMetrics(DefaultConfig().Metrics)
	obs := NewPipelineObserver(nil, metrics)
	obs.RunFinished(context.Background(), &engine.Run{ID: "r", Project: "office", Status: engine.RunStatusSucceeded})

	if got := testutil.ToFloat64(metrics.runsStarted.WithLabelValues("office")); got != 1 {
		t.Errorf("expected the run to be counted, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.runsCompleted.WithLabelValues("succeeded")); got != 1 {
		t.Errorf("expected 1 succeeded run, got %v", got)
	}
}
