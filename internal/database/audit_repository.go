package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gopost/engine/internal/domain"
)

// AuditRepository is the append-only audit sink. Every claim conflict,
// dispatch outcome, and cancellation leaves a row here.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends one audit event. Callers treat failures as log-and-continue;
// an unreachable audit table must never fail the job path.
func (r *AuditRepository) Record(ctx context.Context, tenantID string, kind domain.AuditEventKind, message string) error {
	query := `
		INSERT INTO audit_log (id, tenant_id, event_kind, message, created_at)
		VALUES ($1, $2, $3, $4, NOW())`

	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), tenantID, kind, message); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}
