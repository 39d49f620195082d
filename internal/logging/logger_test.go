package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewLogger_Formatters(t *testing.T) {
	dev := NewLogger("debug", "Development", &bytes.Buffer{})
	assert.IsType(t, &logrus.TextFormatter{}, dev.Formatter)
	assert.Equal(t, logrus.DebugLevel, dev.GetLevel())

	prod := NewLogger("warn", "production", &bytes.Buffer{})
	assert.IsType(t, &logrus.JSONFormatter{}, prod.Formatter)
	assert.Equal(t, logrus.WarnLevel, prod.GetLevel())
}

func TestParseLogrusLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"DEBUG", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"info", logrus.InfoLevel},
		{"", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogrusLevel(tt.input))
		})
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	buf.Reset()
	return line
}

func TestTraceHook(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger("info", "production", buf)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.WithContext(ctx).Info("inside span")
	line := decodeLine(t, buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), line["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), line["span_id"])

	logger.Info("no context")
	line = decodeLine(t, buf)
	assert.NotContains(t, line, "trace_id")

	logger.WithContext(context.Background()).Info("no span")
	line = decodeLine(t, buf)
	assert.NotContains(t, line, "trace_id")
}

func TestLogStartupAndShutdown(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger("info", "production", buf)

	LogStartup(logger, "celebrum-arb-go", "1.0.0", 8080)
	line := decodeLine(t, buf)
	assert.Equal(t, "startup", line["event"])
	assert.Equal(t, float64(8080), line["port"])

	LogShutdown(logger, "celebrum-arb-go", "signal received")
	line = decodeLine(t, buf)
	assert.Equal(t, "shutdown", line["event"])
	assert.Equal(t, "signal received", line["reason"])
}
