package domain

import "time"

// TenantID identifies an isolated tenant database. Immutable once the tenant
// is provisioned; used as the schema-cache key and the credential lookup key.
type TenantID string

// Role selects one of the two database credentials provisioned per tenant.
type Role string

const (
	// RoleApp is the restricted credential used for public CRUD. It cannot run DDL.
	RoleApp Role = "app"
	// RoleOwner is the privileged credential used for DDL and admin queries.
	RoleOwner Role = "owner"
)

// Valid reports whether r is one of the two provisioned roles.
func (r Role) Valid() bool {
	return r == RoleApp || r == RoleOwner
}

// Tenant is one isolated customer database ("project") within the platform.
type Tenant struct {
	ID        TenantID
	Name      string
	CreatedAt time.Time
}

// TenantCredential is an encrypted connection string for one (tenant, role)
// pair. Ciphertext is hex(nonce || AES-256-GCM(dsn)); the plaintext DSN only
// ever exists in memory inside the connection router.
type TenantCredential struct {
	TenantID   TenantID
	Role       Role
	Ciphertext string
	CreatedAt  time.Time
}
