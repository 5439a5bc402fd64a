package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/prohmpiriya/safeguard-membership/pkg/telemetry"
)

// Tracing starts a server span per request, continuing any inbound trace
// context, and records request count and latency by route.
func Tracing() gin.HandlerFunc {
	requests, _ := telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "http_server_requests_total",
		Description: "HTTP requests served",
		Unit:        "1",
	})
	latency, _ := telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency",
		Unit:        "s",
	})

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := telemetry.StartSpan(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(telemetry.MethodAttr(c.Request.Method), telemetry.RouteAttr(route)),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(telemetry.StatusCodeAttr(status))
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
		if userID, ok := GetUserID(c); ok {
			span.SetAttributes(telemetry.UserIDAttr(userID))
		}

		attrs := []attribute.KeyValue{
			telemetry.MethodAttr(c.Request.Method),
			telemetry.RouteAttr(route),
			telemetry.StatusCodeAttr(status),
		}
		requests.Inc(ctx, attrs...)
		latency.Record(ctx, time.Since(start).Seconds(), attrs...)
	}
}
