// Package engine executes validated CRUD and DDL operations against tenant
// databases. The CRUD engine only ever holds the restricted app role; the DDL
// engine only ever asks for the privileged owner role.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"basehub/internal/ddl"
	"basehub/internal/domain"
	"basehub/internal/query"
)

// Limits bounds result sizes for the public read surface.
type Limits struct {
	DefaultLimit int // applied when the request omits limit
	MaxRows      int // hard ceiling; requested limits are clamped to this
}

// Result carries rows plus the executed statement's own row count. The count
// is intentionally cheap; callers needing an exact total run their own COUNT.
type Result struct {
	Rows     []map[string]any
	RowCount int64
}

// CrudEngine orchestrates schema validation, SQL construction, and execution
// for SELECT/INSERT/UPDATE/DELETE under the tenant's restricted app role.
type CrudEngine struct {
	schemas domain.SchemaProvider
	router  domain.ConnectionRouter
	limits  Limits
	logger  *slog.Logger
}

// NewCrudEngine creates a CrudEngine.
func NewCrudEngine(schemas domain.SchemaProvider, router domain.ConnectionRouter, limits Limits, logger *slog.Logger) *CrudEngine {
	if limits.DefaultLimit <= 0 {
		limits.DefaultLimit = 100
	}
	if limits.MaxRows <= 0 {
		limits.MaxRows = 1000
	}
	return &CrudEngine{schemas: schemas, router: router, limits: limits, logger: logger}
}

// Select validates the query against the tenant's schema, builds a
// parameterized SELECT, and executes it under the app role.
func (e *CrudEngine) Select(ctx context.Context, tenantID domain.TenantID, table string, q *domain.Query) (*Result, error) {
	info, err := e.tableInfo(ctx, tenantID, table)
	if err != nil {
		return nil, err
	}
	allowed := info.ColumnSet()

	selectList, err := query.BuildSelectList(q.Projection, allowed)
	if err != nil {
		return nil, err
	}
	where, params, err := query.BuildWhere(q.Filters, allowed, 1)
	if err != nil {
		return nil, err
	}
	orderBy, err := query.BuildOrder(q.Order, allowed)
	if err != nil {
		return nil, err
	}

	limit := e.limits.DefaultLimit
	if q.Limit != nil {
		limit = min(*q.Limit, e.limits.MaxRows)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", selectList, ddl.QuoteIdentifier(table))
	if where != "" {
		b.WriteByte(' ')
		b.WriteString(where)
	}
	if orderBy != "" {
		b.WriteByte(' ')
		b.WriteString(orderBy)
	}
	fmt.Fprintf(&b, " LIMIT $%d", len(params)+1)
	params = append(params, limit)
	if q.Offset != nil {
		fmt.Fprintf(&b, " OFFSET $%d", len(params)+1)
		params = append(params, *q.Offset)
	}

	conn, err := e.router.Acquire(ctx, tenantID, domain.RoleApp)
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, b.String(), params...)
	if err != nil {
		return nil, err
	}
	return &Result{Rows: rows, RowCount: int64(len(rows))}, nil
}

// Insert validates every row's keys against the schema, then executes one
// parameterized INSERT per row. A single unknown key rejects the whole
// request before any SQL runs. When returning is set, inserted rows are
// echoed back.
func (e *CrudEngine) Insert(ctx context.Context, tenantID domain.TenantID, table string, rowInputs []map[string]any, returning bool) (*Result, error) {
	if len(rowInputs) == 0 {
		return nil, domain.ErrValidation("rows is required and must not be empty")
	}
	info, err := e.tableInfo(ctx, tenantID, table)
	if err != nil {
		return nil, err
	}
	allowed := info.ColumnSet()

	// Validate all rows up front: nothing executes if any row is malformed.
	for i, row := range rowInputs {
		for key := range row {
			if !allowed[key] {
				return nil, domain.ErrValidation("row %d: unknown column %q", i, key)
			}
		}
	}

	conn, err := e.router.Acquire(ctx, tenantID, domain.RoleApp)
	if err != nil {
		return nil, err
	}

	// One INSERT per row: slightly slower than a multi-row statement, but
	// failures attribute cleanly to a row index.
	result := &Result{}
	for i, row := range rowInputs {
		stmt, params := buildInsert(table, row, returning)
		if returning {
			rows, err := conn.Query(ctx, stmt, params...)
			if err != nil {
				return nil, fmt.Errorf("insert row %d: %w", i, err)
			}
			result.Rows = append(result.Rows, rows...)
			result.RowCount += int64(len(rows))
		} else {
			n, err := conn.Exec(ctx, stmt, params...)
			if err != nil {
				return nil, fmt.Errorf("insert row %d: %w", i, err)
			}
			result.RowCount += n
		}
	}
	return result, nil
}

// Update requires at least one filter: a zero-filter update is rejected
// before any SQL is built, never confirmed interactively. Mutated rows are
// returned alongside the affected count.
func (e *CrudEngine) Update(ctx context.Context, tenantID domain.TenantID, table string, values map[string]any, filters []domain.Filter) (*Result, error) {
	if len(filters) == 0 {
		return nil, domain.ErrValidation("update requires at least one filter")
	}
	if len(values) == 0 {
		return nil, domain.ErrValidation("values is required and must not be empty")
	}
	info, err := e.tableInfo(ctx, tenantID, table)
	if err != nil {
		return nil, err
	}
	allowed := info.ColumnSet()

	cols := sortedKeys(values)
	for _, c := range cols {
		if !allowed[c] {
			return nil, domain.ErrValidation("unknown column %q", c)
		}
	}

	setClauses := make([]string, len(cols))
	params := make([]any, 0, len(cols)+len(filters))
	for i, c := range cols {
		setClauses[i] = fmt.Sprintf("%s = $%d", ddl.QuoteIdentifier(c), i+1)
		params = append(params, values[c])
	}

	where, whereParams, err := query.BuildWhere(filters, allowed, len(params)+1)
	if err != nil {
		return nil, err
	}
	params = append(params, whereParams...)

	stmt := fmt.Sprintf("UPDATE %s SET %s %s RETURNING *",
		ddl.QuoteIdentifier(table), strings.Join(setClauses, ", "), where)

	conn, err := e.router.Acquire(ctx, tenantID, domain.RoleApp)
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, stmt, params...)
	if err != nil {
		return nil, err
	}
	return &Result{Rows: rows, RowCount: int64(len(rows))}, nil
}

// Delete requires at least one filter, mirroring Update's safety invariant.
func (e *CrudEngine) Delete(ctx context.Context, tenantID domain.TenantID, table string, filters []domain.Filter) (*Result, error) {
	if len(filters) == 0 {
		return nil, domain.ErrValidation("delete requires at least one filter")
	}
	info, err := e.tableInfo(ctx, tenantID, table)
	if err != nil {
		return nil, err
	}

	where, params, err := query.BuildWhere(filters, info.ColumnSet(), 1)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("DELETE FROM %s %s", ddl.QuoteIdentifier(table), where)

	conn, err := e.router.Acquire(ctx, tenantID, domain.RoleApp)
	if err != nil {
		return nil, err
	}
	n, err := conn.Exec(ctx, stmt, params...)
	if err != nil {
		return nil, err
	}
	return &Result{RowCount: n}, nil
}

// tableInfo resolves the table against the current snapshot.
func (e *CrudEngine) tableInfo(ctx context.Context, tenantID domain.TenantID, table string) (domain.TableInfo, error) {
	snap, err := e.schemas.GetSchema(ctx, tenantID)
	if err != nil {
		return domain.TableInfo{}, err
	}
	info, ok := snap.Table(table)
	if !ok {
		return domain.TableInfo{}, domain.ErrNotFound("table %q not found", table)
	}
	return info, nil
}

// buildInsert renders one parameterized INSERT. Rows with no keys insert
// default values only.
func buildInsert(table string, row map[string]any, returning bool) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s", ddl.QuoteIdentifier(table))

	cols := sortedKeys(row)
	if len(cols) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		quoted := make([]string, len(cols))
		placeholders := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = ddl.QuoteIdentifier(c)
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		fmt.Fprintf(&b, " (%s) VALUES (%s)", strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	}
	if returning {
		b.WriteString(" RETURNING *")
	}

	params := make([]any, len(cols))
	for i, c := range cols {
		params[i] = row[c]
	}
	return b.String(), params
}

// sortedKeys returns the map's keys in sorted order so generated SQL is
// deterministic.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
