// Package repository persists control-plane records (tenants, credentials,
// API keys) in the SQLite metadata store.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"basehub/internal/domain"
)

// TenantRepo implements domain.TenantRepository. Writes go through the
// single-connection write handle; reads use the wider read pool so lookups
// never queue behind a write.
type TenantRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewTenantRepo creates a new TenantRepo.
func NewTenantRepo(writeDB, readDB *sql.DB) *TenantRepo {
	return &TenantRepo{writeDB: writeDB, readDB: readDB}
}

// Create inserts a tenant record.
func (r *TenantRepo) Create(ctx context.Context, t *domain.Tenant) error {
	_, err := r.writeDB.ExecContext(ctx,
		`INSERT INTO tenants (id, name) VALUES (?, ?)`, string(t.ID), t.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict("tenant %q already exists", t.ID)
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// Get returns the tenant with the given ID.
func (r *TenantRepo) Get(ctx context.Context, id domain.TenantID) (*domain.Tenant, error) {
	t := domain.Tenant{ID: id}
	err := r.readDB.QueryRowContext(ctx,
		`SELECT name, created_at FROM tenants WHERE id = ?`, string(id)).
		Scan(&t.Name, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("tenant %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

// List returns all tenants ordered by ID.
func (r *TenantRepo) List(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT id, name, created_at FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var tenants []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		var id string
		if err := rows.Scan(&id, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		t.ID = domain.TenantID(id)
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// CredentialRepo implements domain.CredentialRepository.
type CredentialRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewCredentialRepo creates a new CredentialRepo.
func NewCredentialRepo(writeDB, readDB *sql.DB) *CredentialRepo {
	return &CredentialRepo{writeDB: writeDB, readDB: readDB}
}

// Upsert stores the encrypted credential for a (tenant, role) pair, replacing
// any previous value (credential rotation).
func (r *CredentialRepo) Upsert(ctx context.Context, cred *domain.TenantCredential) error {
	_, err := r.writeDB.ExecContext(ctx,
		`INSERT INTO tenant_credentials (tenant_id, role, ciphertext) VALUES (?, ?, ?)
		 ON CONFLICT (tenant_id, role) DO UPDATE SET ciphertext = excluded.ciphertext`,
		string(cred.TenantID), string(cred.Role), cred.Ciphertext)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// Get returns the encrypted credential for a (tenant, role) pair.
func (r *CredentialRepo) Get(ctx context.Context, tenantID domain.TenantID, role domain.Role) (*domain.TenantCredential, error) {
	cred := domain.TenantCredential{TenantID: tenantID, Role: role}
	err := r.readDB.QueryRowContext(ctx,
		`SELECT ciphertext, created_at FROM tenant_credentials WHERE tenant_id = ? AND role = ?`,
		string(tenantID), string(role)).
		Scan(&cred.Ciphertext, &cred.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("no %s credential for tenant %q", role, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &cred, nil
}

// APIKeyRepo implements domain.APIKeyRepository. GetByHash runs on every
// authenticated request, so it reads through the wider read pool.
type APIKeyRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(writeDB, readDB *sql.DB) *APIKeyRepo {
	return &APIKeyRepo{writeDB: writeDB, readDB: readDB}
}

// Create inserts a hashed API key.
func (r *APIKeyRepo) Create(ctx context.Context, key *domain.APIKey) error {
	_, err := r.writeDB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, tenant_id, role) VALUES (?, ?, ?)`,
		key.KeyHash, string(key.TenantID), string(key.Role))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict("api key already exists")
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// GetByHash returns the API key record for the given sha256 hex hash.
func (r *APIKeyRepo) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	key := domain.APIKey{KeyHash: hash}
	var tenantID, role string
	err := r.readDB.QueryRowContext(ctx,
		`SELECT tenant_id, role FROM api_keys WHERE key_hash = ?`, hash).
		Scan(&tenantID, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("api key not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	key.TenantID = domain.TenantID(tenantID)
	key.Role = domain.Role(role)
	return &key, nil
}

// isUniqueViolation detects SQLite unique-constraint failures without
// depending on driver error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
