package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/werpoz/chatrelay/internal/model"
)

// TenantsRepository defines read access to the tenants table.
type TenantsRepository interface {
	// GetByAPIKey returns the tenant or nil when the key is unknown.
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Tenant, error)
}

type TenantsRepositoryImpl struct {
	db *sqlx.DB
}

func NewTenantsRepository(db *sqlx.DB) *TenantsRepositoryImpl {
	return &TenantsRepositoryImpl{db: db}
}

func (r *TenantsRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*model.Tenant, error) {
	const q = `
		SELECT id, name, api_key, status, created_at, updated_at
		FROM tenants
		WHERE api_key = ?
	`
	var t model.Tenant
	if err := r.db.GetContext(ctx, &t, q, apiKey); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
