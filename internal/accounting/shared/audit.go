package shared

import (
	"context"

	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort records ledger events for compliance. Failures never fail the caller.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// RecordAudit writes to port ignoring errors; a nil port is a no-op.
func RecordAudit(ctx context.Context, port AuditPort, log internalShared.AuditLog) {
	if port == nil {
		return
	}
	_ = port.Record(ctx, log)
}
