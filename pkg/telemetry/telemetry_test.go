package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/errors"
)

func TestInitNoneIsNoop(t *testing.T) {
	shutdown, err := InitWithConfig("weft", "test", Config{Exporter: "none"})
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown = %v", err)
	}
}

func TestInitUnknownExporterFails(t *testing.T) {
	if _, err := InitWithConfig("weft", "test", Config{Exporter: "bogus"}); err == nil {
		t.Error("want error for unknown exporter")
	}
}

func TestInitOTLPRequiresEndpoint(t *testing.T) {
	if _, err := InitWithConfig("weft", "test", Config{Exporter: "otlp"}); err == nil {
		t.Error("want error for missing otlp endpoint")
	}
}

func TestConfigureSlogFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	logger.Info("hello", "key", "value")
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("not json: %v (%q)", err, buf.String())
	}
	if record["msg"] != "hello" || record["key"] != "value" {
		t.Errorf("record = %v", record)
	}

	buf.Reset()
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Error("debug must be filtered at info level")
	}
}

func TestContextHandlerStampsSpanAndSessionIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "debug", "json")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	ctx = core.WithSessionID(ctx, "s-log")

	logger.InfoContext(ctx, "inside span")
	out := buf.String()
	if !strings.Contains(out, "trace_id") || !strings.Contains(out, "span_id") {
		t.Errorf("output missing trace correlation: %q", out)
	}
	if !strings.Contains(out, "s-log") {
		t.Errorf("output missing session correlation: %q", out)
	}

	buf.Reset()
	logger.Info("outside span")
	if strings.Contains(buf.String(), "trace_id") || strings.Contains(buf.String(), "session_id") {
		t.Error("no correlation attrs expected on a bare context")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// The global meter provider defaults to no-op, which is enough to
// exercise the recording paths.
func TestRuntimeMetricsRecording(t *testing.T) {
	metrics, err := NewRuntimeMetrics()
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	metrics.RecordEvent(ctx, core.Event{Type: core.EventReasoning})
	metrics.RecordEvent(ctx, core.Event{Type: core.EventActionCompleted, Err: "boom"})
	metrics.RecordEvent(ctx, core.Event{
		Type:    core.EventError,
		Payload: map[string]any{"code": "PARSE_ERROR"},
	})
	metrics.RecordError(ctx, errors.Newf(errors.CodeExecution, "exec failed"), "scheduler")
	metrics.RecordTokens(ctx, "test-model", 10, 20)

	var nilMetrics *RuntimeMetrics
	nilMetrics.RecordEvent(ctx, core.Event{Type: core.EventAnswer})
	nilMetrics.RecordError(ctx, nil, "x")
}

func TestMetricsEmitterForwards(t *testing.T) {
	metrics, err := NewRuntimeMetrics()
	if err != nil {
		t.Fatal(err)
	}

	var got []core.Event
	emitter := NewMetricsEmitter(core.EmitterFunc(func(_ context.Context, event core.Event) {
		got = append(got, event)
	}), metrics)

	emitter.Emit(context.Background(), core.Event{Type: core.EventAnswer, Content: "hi"})
	if len(got) != 1 || got[0].Content != "hi" {
		t.Errorf("forwarded = %v", got)
	}
}

func TestActionResultTruncation(t *testing.T) {
	long := strings.Repeat("x", 600)
	attrs := ActionResult(long, 0)
	if len(attrs) != 1 {
		t.Fatalf("attrs = %v", attrs)
	}
	if got := attrs[0].Value.AsString(); len(got) != 503 || !strings.HasSuffix(got, "...") {
		t.Errorf("len = %d", len(got))
	}
	if ActionResult("", 10) != nil {
		t.Error("empty result should produce no attributes")
	}
}
