package logger

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

// RequestIDKey carries the inbound X-Request-ID through request contexts
const RequestIDKey contextKey = "request_id"

// Logger wraps zap.Logger with request and member scoped helpers
type Logger struct {
	*zap.Logger
	exporter *otlpExporter
}

var (
	globalLogger *Logger
	mu           sync.Mutex
)

// Config holds logger configuration
type Config struct {
	Level       string // debug, info, warn, error
	ServiceName string
	Development bool   // console encoder when true, JSON otherwise
	OutputPath  string // stdout, stderr, or file path

	// OTLP export to an OpenTelemetry collector
	OTLPEnabled   bool
	OTLPEndpoint  string        // host:port or full http(s) URL
	OTLPTimeout   time.Duration // per export request
	BatchSize     int
	BatchInterval time.Duration
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:       "info",
		ServiceName: "safeguard-membership",
		OutputPath:  "stdout",

		OTLPEndpoint:  "localhost:4317",
		OTLPTimeout:   defaultOTLPTimeout,
		BatchSize:     defaultOTLPBatchSize,
		BatchInterval: defaultOTLPBatchInterval,
	}
}

func parseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func openOutput(path string) (zapcore.WriteSyncer, error) {
	switch path {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(file), nil
}

// New creates a Logger writing structured entries to cfg.OutputPath
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder

	encoder := zapcore.NewJSONEncoder(encoderConfig)
	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	output, err := openOutput(cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	level := parseLevel(cfg.Level)
	cores := []zapcore.Core{zapcore.NewCore(encoder, output, level)}

	var exporter *otlpExporter
	if cfg.OTLPEnabled && cfg.OTLPEndpoint != "" {
		exporter = newOTLPExporter(cfg)
		cores = append(cores, newOTLPCore(exporter, level))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).With(zap.String("service", cfg.ServiceName))

	return &Logger{Logger: zapLogger, exporter: exporter}, nil
}

// Init builds the process-wide logger; later calls replace it
func Init(cfg *Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	globalLogger = l
	mu.Unlock()
	return nil
}

// Get returns the process-wide logger, building a default one on first use
func Get() *Logger {
	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		l, err := New(DefaultConfig())
		if err != nil {
			return NewNop()
		}
		globalLogger = l
	}
	return globalLogger
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// WithContext tags entries with the active trace and the request id, when present
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	fields := make([]zap.Field, 0, 3)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields...)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), exporter: l.exporter}
}

// WithMember returns a logger tagged with the member the work is done for
func (l *Logger) WithMember(userID string) *Logger {
	return l.WithFields(zap.String("user_id", userID))
}

// ContextWithRequestID stores a request id for WithContext to pick up
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestIDFromContext returns the request id stored by ContextWithRequestID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// Sync flushes the process-wide logger
func Sync() error {
	return Get().Sync()
}

// Close flushes buffered entries and stops OTLP export, if enabled
func (l *Logger) Close() {
	_ = l.Logger.Sync()
	if l.exporter != nil {
		l.exporter.Close()
	}
}

// Close closes the process-wide logger
func Close() {
	Get().Close()
}
