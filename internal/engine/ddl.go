package engine

import (
	"context"
	"log/slog"

	"basehub/internal/ddl"
	"basehub/internal/domain"
)

// DdlEngine executes schema mutations under the tenant's owner role. Every
// operation issues exactly one statement and invalidates the tenant's schema
// snapshot synchronously before returning, so a follow-up read sees the new
// shape.
type DdlEngine struct {
	schemas domain.SchemaProvider
	router  domain.ConnectionRouter
	logger  *slog.Logger
}

// NewDdlEngine creates a DdlEngine.
func NewDdlEngine(schemas domain.SchemaProvider, router domain.ConnectionRouter, logger *slog.Logger) *DdlEngine {
	return &DdlEngine{schemas: schemas, router: router, logger: logger}
}

// CreateTable creates a table from validated column definitions.
func (e *DdlEngine) CreateTable(ctx context.Context, tenantID domain.TenantID, table string, columns []domain.ColumnDefinition) error {
	stmt, err := ddl.CreateTable(table, columns)
	if err != nil {
		return domain.ErrValidation("%s", err)
	}
	return e.execute(ctx, tenantID, "create_table", table, stmt)
}

// DropTable drops a table.
func (e *DdlEngine) DropTable(ctx context.Context, tenantID domain.TenantID, table string) error {
	stmt, err := ddl.DropTable(table)
	if err != nil {
		return domain.ErrValidation("%s", err)
	}
	return e.execute(ctx, tenantID, "drop_table", table, stmt)
}

// AddColumn adds a column to an existing table.
func (e *DdlEngine) AddColumn(ctx context.Context, tenantID domain.TenantID, table string, column domain.ColumnDefinition) error {
	stmt, err := ddl.AddColumn(table, column)
	if err != nil {
		return domain.ErrValidation("%s", err)
	}
	return e.execute(ctx, tenantID, "add_column", table, stmt)
}

// DropColumn drops a column from an existing table.
func (e *DdlEngine) DropColumn(ctx context.Context, tenantID domain.TenantID, table, column string) error {
	stmt, err := ddl.DropColumn(table, column)
	if err != nil {
		return domain.ErrValidation("%s", err)
	}
	return e.execute(ctx, tenantID, "drop_column", table, stmt)
}

// RenameTable renames a table.
func (e *DdlEngine) RenameTable(ctx context.Context, tenantID domain.TenantID, table, newName string) error {
	stmt, err := ddl.RenameTable(table, newName)
	if err != nil {
		return domain.ErrValidation("%s", err)
	}
	return e.execute(ctx, tenantID, "rename_table", table, stmt)
}

// RenameColumn renames a column.
func (e *DdlEngine) RenameColumn(ctx context.Context, tenantID domain.TenantID, table, column, newName string) error {
	stmt, err := ddl.RenameColumn(table, column, newName)
	if err != nil {
		return domain.ErrValidation("%s", err)
	}
	return e.execute(ctx, tenantID, "rename_column", table, stmt)
}

// execute runs one DDL statement under the owner role and invalidates the
// schema snapshot on success.
func (e *DdlEngine) execute(ctx context.Context, tenantID domain.TenantID, op, table, stmt string) error {
	conn, err := e.router.Acquire(ctx, tenantID, domain.RoleOwner)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return err
	}
	e.schemas.Invalidate(tenantID)
	e.logger.Info("schema changed", "tenant", tenantID, "op", op, "table", table)
	return nil
}
