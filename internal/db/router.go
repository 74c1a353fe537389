package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"basehub/internal/db/crypto"
	"basehub/internal/domain"
)

// PoolConfig bounds every tenant pool the router creates. Pools are small,
// sized for modest hardware, and every statement carries a server-side
// timeout shorter than the HTTP request timeout.
type PoolConfig struct {
	MaxConns         int32
	AcquireTimeout   time.Duration
	StatementTimeout time.Duration
}

// poolKey scopes a pool to one (tenant, role) pair. Connections for different
// tenants or roles are never interchangeable.
type poolKey struct {
	tenant domain.TenantID
	role   domain.Role
}

// tenantPool abstracts the pgx pool so the router can be exercised without a
// live Postgres server.
type tenantPool interface {
	query(ctx context.Context, acquireTimeout time.Duration, sql string, args ...any) ([]map[string]any, error)
	exec(ctx context.Context, acquireTimeout time.Duration, sql string, args ...any) (int64, error)
	close()
}

// Router implements domain.ConnectionRouter: it resolves a tenant identifier
// to a pooled connection for the requested role, decrypting the stored
// credential on demand. Engines never see plaintext connection strings.
type Router struct {
	creds     domain.CredentialRepository
	encryptor *crypto.Encryptor
	cfg       PoolConfig
	logger    *slog.Logger

	mu    sync.RWMutex
	pools map[poolKey]tenantPool

	// newPool is swapped out in tests.
	newPool func(ctx context.Context, dsn string, cfg PoolConfig) (tenantPool, error)
}

// NewRouter creates a connection router. Credentials are read from creds and
// decrypted with the process-wide encryptor on first use per (tenant, role).
func NewRouter(creds domain.CredentialRepository, encryptor *crypto.Encryptor, cfg PoolConfig, logger *slog.Logger) *Router {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = 20 * time.Second
	}
	return &Router{
		creds:     creds,
		encryptor: encryptor,
		cfg:       cfg,
		logger:    logger,
		pools:     make(map[poolKey]tenantPool),
		newPool:   newPgxPool,
	}
}

// Acquire returns a connection handle scoped to (tenantID, role).
func (r *Router) Acquire(ctx context.Context, tenantID domain.TenantID, role domain.Role) (domain.Conn, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown database role %q", role)
	}
	pool, err := r.pool(ctx, tenantID, role)
	if err != nil {
		return nil, err
	}
	return &routedConn{pool: pool, acquireTimeout: r.cfg.AcquireTimeout, tenant: tenantID, role: role}, nil
}

// PoolCount returns the number of live pools. Used by the maintenance sweep.
func (r *Router) PoolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// Close shuts down every pool. Called on server shutdown.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, pool := range r.pools {
		pool.close()
		delete(r.pools, key)
	}
}

// EvictTenant drops the tenant's pools, e.g. after credential rotation.
func (r *Router) EvictTenant(tenantID domain.TenantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range []domain.Role{domain.RoleApp, domain.RoleOwner} {
		key := poolKey{tenant: tenantID, role: role}
		if pool, ok := r.pools[key]; ok {
			pool.close()
			delete(r.pools, key)
		}
	}
}

// pool returns the pool for (tenant, role), creating it on first use with
// double-checked locking.
func (r *Router) pool(ctx context.Context, tenantID domain.TenantID, role domain.Role) (tenantPool, error) {
	key := poolKey{tenant: tenantID, role: role}

	r.mu.RLock()
	if pool, ok := r.pools[key]; ok {
		r.mu.RUnlock()
		return pool, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if pool, ok := r.pools[key]; ok {
		return pool, nil
	}

	cred, err := r.creds.Get(ctx, tenantID, role)
	if err != nil {
		return nil, err
	}
	dsn, err := r.encryptor.Decrypt(cred.Ciphertext)
	if err != nil {
		// Wrong master key or corrupted blob: a configuration failure for
		// this tenant, not something a retry can fix.
		r.logger.Error("credential decryption failed", "tenant", tenantID, "role", role, "error", err)
		return nil, fmt.Errorf("decrypt %s credential for tenant %q: %w", role, tenantID, err)
	}

	pool, err := r.newPool(ctx, dsn, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool for tenant %q role %s: %w", tenantID, role, err)
	}
	r.pools[key] = pool
	r.logger.Info("tenant pool created", "tenant", tenantID, "role", role)
	return pool, nil
}

// routedConn adapts a tenantPool to domain.Conn.
type routedConn struct {
	pool           tenantPool
	acquireTimeout time.Duration
	tenant         domain.TenantID
	role           domain.Role
}

func (c *routedConn) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	return c.pool.query(ctx, c.acquireTimeout, sql, args...)
}

func (c *routedConn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return c.pool.exec(ctx, c.acquireTimeout, sql, args...)
}

// pgxTenantPool is the production tenantPool backed by pgxpool.
type pgxTenantPool struct {
	pool *pgxpool.Pool
}

// newPgxPool parses the DSN, applies pool bounds and the server-side
// statement timeout, and opens the pool. pgx connects lazily, so a tenant
// database that is down does not fail pool creation, it fails the first
// acquisition instead.
func newPgxPool(ctx context.Context, dsn string, cfg PoolConfig) (tenantPool, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	pc.MaxConns = cfg.MaxConns
	pc.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	return &pgxTenantPool{pool: pool}, nil
}

func (p *pgxTenantPool) query(ctx context.Context, acquireTimeout time.Duration, sql string, args ...any) ([]map[string]any, error) {
	conn, err := p.acquire(ctx, acquireTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, classifyPgError(err)
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, classifyPgError(err)
	}
	return collected, nil
}

func (p *pgxTenantPool) exec(ctx context.Context, acquireTimeout time.Duration, sql string, args ...any) (int64, error) {
	conn, err := p.acquire(ctx, acquireTimeout)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classifyPgError(err)
	}
	return tag.RowsAffected(), nil
}

// acquire bounds pool acquisition separately from statement execution:
// exhaustion surfaces as a retryable error instead of queuing indefinitely.
func (p *pgxTenantPool) acquire(ctx context.Context, timeout time.Duration) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := p.pool.Acquire(acquireCtx)
	if err != nil {
		return nil, classifyAcquireError(err, ctx)
	}
	return conn, nil
}

// classifyAcquireError separates pool exhaustion from caller cancellation. A
// deadline hit while the caller's own context is still live means acquisition
// timed out waiting for a free connection, which is retryable.
func classifyAcquireError(err error, callerCtx context.Context) error {
	if errors.Is(err, context.DeadlineExceeded) && callerCtx.Err() == nil {
		return domain.ErrUnavailable("connection pool exhausted, retry later")
	}
	return fmt.Errorf("acquire connection: %w", err)
}

func (p *pgxTenantPool) close() {
	p.pool.Close()
}
