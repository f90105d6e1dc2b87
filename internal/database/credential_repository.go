package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/gopost/engine/internal/domain"
)

const credentialSelectList = `tenant_id, platform, secret, updated_at`

// CredentialRepository reads the durable credential store. Records come back
// with their secrets still encrypted; the credential cache owns decryption.
// The engine never writes credentials; management lives in a separate
// service.
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository creates a new repository.
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// ListAll returns every credential record.
func (r *CredentialRepository) ListAll(ctx context.Context) ([]domain.CredentialRecord, error) {
	query := `SELECT ` + credentialSelectList + ` FROM api_credentials`

	records := []domain.CredentialRecord{}
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return records, nil
}

// GetByScope returns the single record for one scope: the tenant row for a
// tenant scope, the shared row (tenant_id IS NULL) for a global scope.
func (r *CredentialRepository) GetByScope(ctx context.Context, scope domain.CredentialScope) (*domain.CredentialRecord, error) {
	var record domain.CredentialRecord
	var err error

	if scope.IsGlobal() {
		query := `SELECT ` + credentialSelectList + `
			FROM api_credentials
			WHERE platform = $1 AND tenant_id IS NULL`
		err = r.db.GetContext(ctx, &record, query, scope.Platform)
	} else {
		query := `SELECT ` + credentialSelectList + `
			FROM api_credentials
			WHERE platform = $1 AND tenant_id = $2`
		err = r.db.GetContext(ctx, &record, query, scope.Platform, scope.TenantID)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s: %w", scope.CacheKey(), err)
	}
	return &record, nil
}
