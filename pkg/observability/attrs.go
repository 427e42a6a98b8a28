package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Trade attribute keys.
var (
	AttrIntentID     = attribute.Key("tradetrust.intent.id")
	AttrReceiptID    = attribute.Key("tradetrust.receipt.id")
	AttrMode         = attribute.Key("tradetrust.execution.mode")
	AttrSymbol       = attribute.Key("tradetrust.execution.symbol")
	AttrBackend      = attribute.Key("tradetrust.verification.backend")
	AttrVerifyStatus = attribute.Key("tradetrust.verification.status")
	AttrOperation    = attribute.Key("tradetrust.operation")
)

// ExecuteOperation returns attributes for an execution.
func ExecuteOperation(intentID, mode, symbol string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOperation.String("execute"),
		AttrIntentID.String(intentID),
		AttrMode.String(mode),
		AttrSymbol.String(symbol),
	}
}

// VerifyOperation returns attributes for a verification attempt.
func VerifyOperation(receiptID, backend string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOperation.String("verify"),
		AttrReceiptID.String(receiptID),
		AttrBackend.String(backend),
	}
}

// AuditOperation returns attributes for audit record resolution.
func AuditOperation(intentID, receiptID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOperation.String("audit"),
		AttrIntentID.String(intentID),
		AttrReceiptID.String(receiptID),
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
