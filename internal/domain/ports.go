package domain

import "context"

// Conn is a connection handle scoped to one (tenant, role) pair. Engines
// only ever see this narrow surface, never driver types or plaintext DSNs.
type Conn interface {
	// Query executes a parameterized statement and returns all result rows as
	// column-name → value maps, in result order.
	Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
	// Exec executes a parameterized statement and returns the affected row count.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

// ConnectionRouter resolves a tenant identifier to a pooled connection for
// the requested database role. Connections for different tenants or roles are
// never interchangeable.
type ConnectionRouter interface {
	Acquire(ctx context.Context, tenantID TenantID, role Role) (Conn, error)
}

// SchemaProvider is the sole authority an engine may trust for "does this
// table/column exist". Implementations cache per-tenant snapshots.
type SchemaProvider interface {
	// GetSchema returns the tenant's current snapshot, refreshing it from the
	// catalog on miss or TTL expiry.
	GetSchema(ctx context.Context, tenantID TenantID) (*SchemaSnapshot, error)
	// GetTables returns the tenant's tables sorted by name.
	GetTables(ctx context.Context, tenantID TenantID) ([]TableInfo, error)
	// Invalidate forces the next GetSchema call to refetch. DDL calls this
	// synchronously after every successful mutation.
	Invalidate(tenantID TenantID)
}

// TenantRepository persists tenant records in the control-plane store.
type TenantRepository interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id TenantID) (*Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
}

// CredentialRepository persists encrypted tenant connection strings.
// The plaintext DSN never passes through this interface.
type CredentialRepository interface {
	Upsert(ctx context.Context, cred *TenantCredential) error
	Get(ctx context.Context, tenantID TenantID, role Role) (*TenantCredential, error)
}

// APIKey associates a hashed API key with a tenant capability.
type APIKey struct {
	KeyHash  string
	TenantID TenantID
	Role     Role
}

// APIKeyRepository persists hashed API keys for request authentication.
type APIKeyRepository interface {
	Create(ctx context.Context, key *APIKey) error
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
}
