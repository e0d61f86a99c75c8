package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "checkout.session.completed"),
		attribute.String("order_id", "456"),
		attribute.String("outcome", "processed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "event_type" && attrs[1].Key != "event_type" {
		t.Fatalf("expected event_type to be retained")
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordWebhookEvent(ctx, "payout.paid", "processed")
	m.RecordOrderTransition(ctx, "PENDING", "COMPLETED")
	m.RecordPayout(ctx, "created")
	m.RecordRefund(ctx, "succeeded")
	m.RecordGatewayCall(ctx, "refund.create", "error")
	m.RecordIntegrityViolation(ctx, "webhook")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "shelfpay"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	m.RecordWebhookEvent(context.Background(), "checkout.session.completed", "duplicate")
}
