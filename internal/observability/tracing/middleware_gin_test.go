package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/shelfpay/internal/observability/context"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestGinMiddlewareTagsResourceAndActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := recordSpans(t)

	r := gin.New()
	r.Use(GinMiddleware())
	r.POST("/api/payouts/:id/cancel", func(c *gin.Context) {
		c.Request = c.Request.WithContext(obscontext.WithActorID(c.Request.Context(), "42"))
		_ = c.Error(errs.Wrap(errs.ErrConflict, "payout_not_cancelable"))
		c.Status(http.StatusConflict)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/payouts/991/cancel", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "HTTP POST /api/payouts/:id/cancel", span.Name())

	attrs := attrMap(span.Attributes())
	assert.Equal(t, "991", attrs["shelfpay.payout_id"].AsString())
	assert.Equal(t, "42", attrs["enduser.id"].AsString())
	assert.Equal(t, "payout_not_cancelable", attrs["shelfpay.error_code"].AsString())
	assert.Equal(t, int64(http.StatusConflict), attrs["http.status_code"].AsInt64())
	assert.NotEqual(t, codes.Error, span.Status().Code)
}

func TestGinMiddlewareMarksServerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := recordSpans(t)

	r := gin.New()
	r.Use(GinMiddleware())
	r.POST("/webhooks/stripe", func(c *gin.Context) {
		_ = c.Error(errs.ErrIntegrityViolation)
		c.Status(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil)
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	r.ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	attrs := attrMap(spans[0].Attributes())
	assert.True(t, attrs["shelfpay.webhook.signed"].AsBool())
	_, hasOrder := attrs["shelfpay.order_id"]
	assert.False(t, hasOrder)
	require.Len(t, spans[0].Events(), 1)
}
