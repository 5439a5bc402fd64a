package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	defaultOTLPBatchSize     = 100
	defaultOTLPBatchInterval = time.Second
	defaultOTLPTimeout       = 5 * time.Second
	otlpScopeName            = "go.uber.org/zap"
)

// logRecord is one entry of an OTLP/HTTP JSON logs export
type logRecord struct {
	TimeUnixNano         string     `json:"timeUnixNano"`
	ObservedTimeUnixNano string     `json:"observedTimeUnixNano"`
	SeverityNumber       int32      `json:"severityNumber"`
	SeverityText         string     `json:"severityText"`
	Body                 anyValue   `json:"body"`
	Attributes           []keyValue `json:"attributes,omitempty"`
	TraceID              string     `json:"traceId,omitempty"`
	SpanID               string     `json:"spanId,omitempty"`
}

type keyValue struct {
	Key   string   `json:"key"`
	Value anyValue `json:"value"`
}

// anyValue holds exactly one of its fields. 64-bit integers travel as strings.
type anyValue struct {
	StringValue *string  `json:"stringValue,omitempty"`
	BoolValue   *bool    `json:"boolValue,omitempty"`
	IntValue    *string  `json:"intValue,omitempty"`
	DoubleValue *float64 `json:"doubleValue,omitempty"`
}

type logsPayload struct {
	ResourceLogs []resourceLogs `json:"resourceLogs"`
}

type resourceLogs struct {
	Resource  resource    `json:"resource"`
	ScopeLogs []scopeLogs `json:"scopeLogs"`
}

type resource struct {
	Attributes []keyValue `json:"attributes"`
}

type scopeLogs struct {
	Scope      scope       `json:"scope"`
	LogRecords []logRecord `json:"logRecords"`
}

type scope struct {
	Name string `json:"name"`
}

func stringValue(s string) anyValue  { return anyValue{StringValue: &s} }
func boolValue(b bool) anyValue      { return anyValue{BoolValue: &b} }
func doubleValue(f float64) anyValue { return anyValue{DoubleValue: &f} }

func intValue(i int64) anyValue {
	s := strconv.FormatInt(i, 10)
	return anyValue{IntValue: &s}
}

func uintValue(u uint64) anyValue {
	s := strconv.FormatUint(u, 10)
	return anyValue{IntValue: &s}
}

// otlpExporter buffers records and posts them to the collector in batches.
// One exporter is shared by every core derived through With.
type otlpExporter struct {
	endpoint    string
	serviceName string
	client      *http.Client
	batchSize   int
	interval    time.Duration

	mu     sync.Mutex
	buffer []logRecord

	kick      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newOTLPExporter(cfg *Config) *otlpExporter {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultOTLPBatchSize
	}
	interval := cfg.BatchInterval
	if interval <= 0 {
		interval = defaultOTLPBatchInterval
	}
	timeout := cfg.OTLPTimeout
	if timeout <= 0 {
		timeout = defaultOTLPTimeout
	}

	e := &otlpExporter{
		endpoint:    otlpLogsURL(cfg.OTLPEndpoint),
		serviceName: cfg.ServiceName,
		client:      &http.Client{Timeout: timeout},
		batchSize:   batchSize,
		interval:    interval,
		buffer:      make([]logRecord, 0, batchSize),
		kick:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go e.flushLoop()
	return e
}

// otlpLogsURL turns the collector address into its OTLP/HTTP logs URL. A bare
// host:port on the gRPC port 4317 is moved to the HTTP port 4318.
func otlpLogsURL(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		if strings.HasSuffix(endpoint, "/v1/logs") {
			return endpoint
		}
		return endpoint + "/v1/logs"
	}
	if strings.HasSuffix(endpoint, ":4317") {
		endpoint = strings.TrimSuffix(endpoint, "4317") + "4318"
	}
	return "http://" + endpoint + "/v1/logs"
}

func (e *otlpExporter) add(record logRecord) {
	e.mu.Lock()
	e.buffer = append(e.buffer, record)
	full := len(e.buffer) >= e.batchSize
	e.mu.Unlock()

	if full {
		select {
		case e.kick <- struct{}{}:
		default:
		}
	}
}

func (e *otlpExporter) flushLoop() {
	defer close(e.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.flush()
		case <-e.kick:
			e.flush()
		case <-e.stop:
			e.flush()
			return
		}
	}
}

// flush posts everything buffered so far. Export failures never reach the caller.
func (e *otlpExporter) flush() {
	e.mu.Lock()
	if len(e.buffer) == 0 {
		e.mu.Unlock()
		return
	}
	records := e.buffer
	e.buffer = make([]logRecord, 0, e.batchSize)
	e.mu.Unlock()

	payload := logsPayload{ResourceLogs: []resourceLogs{{
		Resource: resource{Attributes: []keyValue{
			{Key: "service.name", Value: stringValue(e.serviceName)},
		}},
		ScopeLogs: []scopeLogs{{
			Scope:      scope{Name: otlpScopeName},
			LogRecords: records,
		}},
	}}}

	data, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: failed to marshal OTLP payload: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: failed to create OTLP request: %v\n", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "logger: OTLP export failed with status %d\n", resp.StatusCode)
	}
}

// Close stops the flush loop after a final flush
func (e *otlpExporter) Close() {
	e.closeOnce.Do(func() {
		close(e.stop)
		<-e.done
	})
}

// otlpCore is a zapcore.Core that feeds an otlpExporter
type otlpCore struct {
	zapcore.LevelEnabler
	exporter *otlpExporter
	fields   []zapcore.Field
}

func newOTLPCore(exporter *otlpExporter, level zapcore.LevelEnabler) *otlpCore {
	return &otlpCore{LevelEnabler: level, exporter: exporter}
}

func (c *otlpCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &otlpCore{LevelEnabler: c.LevelEnabler, exporter: c.exporter, fields: merged}
}

func (c *otlpCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *otlpCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	record := logRecord{
		TimeUnixNano:         strconv.FormatInt(ent.Time.UnixNano(), 10),
		ObservedTimeUnixNano: strconv.FormatInt(time.Now().UnixNano(), 10),
		SeverityNumber:       severityNumber(ent.Level),
		SeverityText:         ent.Level.CapitalString(),
		Body:                 stringValue(ent.Message),
	}

	attrs := make([]keyValue, 0, len(c.fields)+len(fields)+2)
	if ent.Caller.Defined {
		attrs = append(attrs, keyValue{Key: "caller", Value: stringValue(ent.Caller.TrimmedPath())})
	}
	if ent.LoggerName != "" {
		attrs = append(attrs, keyValue{Key: "logger", Value: stringValue(ent.LoggerName)})
	}

	for _, group := range [][]zapcore.Field{c.fields, fields} {
		for _, f := range group {
			switch {
			case f.Key == "trace_id" && f.Type == zapcore.StringType:
				record.TraceID = f.String
			case f.Key == "span_id" && f.Type == zapcore.StringType:
				record.SpanID = f.String
			default:
				if kv, ok := fieldToKeyValue(f); ok {
					attrs = append(attrs, kv)
				}
			}
		}
	}
	record.Attributes = attrs

	c.exporter.add(record)
	return nil
}

func (c *otlpCore) Sync() error {
	c.exporter.flush()
	return nil
}

// severityNumber maps zap levels onto the OTLP severity scale
func severityNumber(level zapcore.Level) int32 {
	switch level {
	case zapcore.DebugLevel:
		return 5
	case zapcore.InfoLevel:
		return 9
	case zapcore.WarnLevel:
		return 13
	case zapcore.ErrorLevel:
		return 17
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return 21
	default:
		return 0
	}
}

func fieldToKeyValue(f zapcore.Field) (keyValue, bool) {
	var v anyValue
	switch f.Type {
	case zapcore.StringType:
		v = stringValue(f.String)
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
		v = intValue(f.Integer)
	case zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type, zapcore.UintptrType:
		v = uintValue(uint64(f.Integer))
	case zapcore.Float64Type:
		v = doubleValue(math.Float64frombits(uint64(f.Integer)))
	case zapcore.Float32Type:
		v = doubleValue(float64(math.Float32frombits(uint32(f.Integer))))
	case zapcore.BoolType:
		v = boolValue(f.Integer == 1)
	case zapcore.DurationType:
		v = stringValue(time.Duration(f.Integer).String())
	case zapcore.SkipType, zapcore.NamespaceType:
		return keyValue{}, false
	case zapcore.ErrorType:
		err, ok := f.Interface.(error)
		if !ok || err == nil {
			return keyValue{}, false
		}
		v = stringValue(err.Error())
	default:
		// everything else goes through zap's own encoding
		enc := zapcore.NewMapObjectEncoder()
		f.AddTo(enc)
		encoded, ok := enc.Fields[f.Key]
		if !ok {
			return keyValue{}, false
		}
		switch val := encoded.(type) {
		case string:
			v = stringValue(val)
		case time.Time:
			v = stringValue(val.Format(time.RFC3339Nano))
		default:
			data, err := json.Marshal(val)
			if err != nil {
				return keyValue{}, false
			}
			v = stringValue(string(data))
		}
	}
	return keyValue{Key: f.Key, Value: v}, true
}
