package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/shelfpay/internal/observability/context"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// routeResources names the :id parameter of each resource route.
var routeResources = map[string]attribute.Key{
	"/api/orders/":     "shelfpay.order_id",
	"/api/payouts/":    "shelfpay.payout_id",
	"/admin/webhooks/": "shelfpay.event_id",
}

// GinMiddleware starts a server span per request and tags it with the
// resource id of the route and any error code returned.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("shelfpay/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		method := strings.ToUpper(c.Request.Method)
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(requestAttributes(c, route, status, time.Since(start))...)...)

		lastErr := c.Errors.Last()
		if lastErr != nil {
			if code := errs.Code(lastErr.Err); code != "" {
				span.SetAttributes(attribute.String("shelfpay.error_code", code))
			}
		}
		if status >= http.StatusInternalServerError {
			if lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		span.End()
	}
}

func requestAttributes(c *gin.Context, route string, status int, elapsed time.Duration) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
		attribute.Int64("http.server_duration_ms", elapsed.Milliseconds()),
	}
	// Set by the user middleware further down the chain.
	if actor := obscontext.ActorIDFromContext(c.Request.Context()); actor != "" {
		attrs = append(attrs, attribute.String("enduser.id", actor))
	}
	if id := c.Param("id"); id != "" {
		if key, ok := resourceKey(route); ok {
			attrs = append(attrs, key.String(id))
		}
	}
	if route == "/webhooks/stripe" {
		attrs = append(attrs, attribute.Bool("shelfpay.webhook.signed", c.GetHeader("Stripe-Signature") != ""))
	}
	return attrs
}

func resourceKey(route string) (attribute.Key, bool) {
	for prefix, key := range routeResources {
		if strings.HasPrefix(route, prefix) {
			return key, true
		}
	}
	return "", false
}
