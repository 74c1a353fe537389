// Package schema maintains per-tenant cached snapshots of table/column
// metadata, refreshed from the tenant database's catalog.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"basehub/internal/ddl"
	"basehub/internal/domain"
)

// DefaultTTL bounds how stale a snapshot may get before the next read
// refetches it from the catalog.
const DefaultTTL = 60 * time.Second

// introspectSQL lists every column of every base table in the tenant's
// public schema, ordered by table then ordinal position.
const introspectSQL = `
SELECT c.table_name, c.column_name, c.data_type, c.is_nullable,
       COALESCE(c.column_default, '') AS column_default
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = 'public' AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`

// Cache implements domain.SchemaProvider. Snapshots are immutable once
// published; concurrent misses for the same tenant collapse into a single
// introspection query.
type Cache struct {
	router domain.ConnectionRouter
	ttl    time.Duration
	logger *slog.Logger

	mu        sync.RWMutex
	snapshots map[domain.TenantID]*domain.SchemaSnapshot

	flight singleflight.Group
	nowFn  func() time.Time
}

// NewCache creates a schema cache backed by the given router. A ttl of zero
// selects DefaultTTL.
func NewCache(router domain.ConnectionRouter, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		router:    router,
		ttl:       ttl,
		logger:    logger,
		snapshots: make(map[domain.TenantID]*domain.SchemaSnapshot),
		nowFn:     time.Now,
	}
}

// GetSchema returns the tenant's current snapshot, refetching from the
// catalog on miss or TTL expiry. Refresh failures propagate; a stale
// snapshot is never served past its TTL window.
func (c *Cache) GetSchema(ctx context.Context, tenantID domain.TenantID) (*domain.SchemaSnapshot, error) {
	c.mu.RLock()
	snap, ok := c.snapshots[tenantID]
	c.mu.RUnlock()
	if ok && c.nowFn().Sub(snap.FetchedAt) < c.ttl {
		return snap, nil
	}

	// The fetch is detached from the first caller's cancellation so that one
	// aborted request cannot fail every waiter sharing the flight.
	v, err, _ := c.flight.Do(string(tenantID), func() (any, error) {
		return c.introspect(context.WithoutCancel(ctx), tenantID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.SchemaSnapshot), nil
}

// GetTables returns the tenant's tables sorted by name.
func (c *Cache) GetTables(ctx context.Context, tenantID domain.TenantID) ([]domain.TableInfo, error) {
	snap, err := c.GetSchema(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return snap.TableList(), nil
}

// Invalidate forces the next GetSchema call for the tenant to refetch. DDL
// operations call this synchronously after every successful mutation.
func (c *Cache) Invalidate(tenantID domain.TenantID) {
	c.mu.Lock()
	delete(c.snapshots, tenantID)
	c.mu.Unlock()
	c.flight.Forget(string(tenantID))
}

// EvictExpired drops snapshots past their TTL. Called by the maintenance
// sweep; readers would refetch these anyway, this just frees the memory.
func (c *Cache) EvictExpired() int {
	now := c.nowFn()
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for id, snap := range c.snapshots {
		if now.Sub(snap.FetchedAt) >= c.ttl {
			delete(c.snapshots, id)
			evicted++
		}
	}
	return evicted
}

// introspect queries the tenant catalog and atomically publishes a new
// snapshot. Catalog names are checked against the identifier grammar before
// they can ever be embedded in generated SQL; tables that fail (possible only
// through out-of-band quoted DDL) are omitted with a warning.
func (c *Cache) introspect(ctx context.Context, tenantID domain.TenantID) (*domain.SchemaSnapshot, error) {
	conn, err := c.router.Acquire(ctx, tenantID, domain.RoleApp)
	if err != nil {
		return nil, fmt.Errorf("acquire introspection connection: %w", err)
	}

	rows, err := conn.Query(ctx, introspectSQL)
	if err != nil {
		return nil, fmt.Errorf("introspect schema for tenant %s: %w", tenantID, err)
	}

	tables := make(map[string]domain.TableInfo)
	skipped := make(map[string]bool)
	for _, row := range rows {
		tableName, _ := row["table_name"].(string)
		columnName, _ := row["column_name"].(string)
		dataType, _ := row["data_type"].(string)
		isNullable, _ := row["is_nullable"].(string)
		columnDefault, _ := row["column_default"].(string)

		if skipped[tableName] {
			continue
		}
		if err := ddl.ValidateIdentifier(tableName); err != nil {
			c.logger.Warn("omitting table with unsafe catalog name",
				"tenant", tenantID, "table", tableName, "error", err)
			skipped[tableName] = true
			delete(tables, tableName)
			continue
		}
		if err := ddl.ValidateIdentifier(columnName); err != nil {
			c.logger.Warn("omitting table with unsafe column name",
				"tenant", tenantID, "table", tableName, "column", columnName, "error", err)
			skipped[tableName] = true
			delete(tables, tableName)
			continue
		}

		info := tables[tableName]
		info.Name = tableName
		info.Columns = append(info.Columns, domain.ColumnInfo{
			Name:         columnName,
			DeclaredType: dataType,
			Nullable:     isNullable == "YES",
			Default:      columnDefault,
		})
		tables[tableName] = info
	}

	snap := &domain.SchemaSnapshot{
		TenantID:  tenantID,
		Tables:    tables,
		FetchedAt: c.nowFn(),
	}

	c.mu.Lock()
	c.snapshots[tenantID] = snap
	c.mu.Unlock()
	return snap, nil
}
