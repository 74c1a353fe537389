package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basehub/internal/domain"
)

// recordingConn captures every statement the engine issues.
type recordingConn struct {
	statements []string
	args       [][]any
	queryRows  []map[string]any
	execCount  int64
	err        error
}

func (c *recordingConn) Query(_ context.Context, sql string, args ...any) ([]map[string]any, error) {
	c.statements = append(c.statements, sql)
	c.args = append(c.args, args)
	if c.err != nil {
		return nil, c.err
	}
	return c.queryRows, nil
}

func (c *recordingConn) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	c.statements = append(c.statements, sql)
	c.args = append(c.args, args)
	if c.err != nil {
		return 0, c.err
	}
	return c.execCount, nil
}

type fakeRouter struct {
	conn  *recordingConn
	roles []domain.Role
}

func (r *fakeRouter) Acquire(_ context.Context, _ domain.TenantID, role domain.Role) (domain.Conn, error) {
	r.roles = append(r.roles, role)
	return r.conn, nil
}

type fakeSchemas struct {
	snapshot    *domain.SchemaSnapshot
	invalidated []domain.TenantID
}

func (s *fakeSchemas) GetSchema(_ context.Context, _ domain.TenantID) (*domain.SchemaSnapshot, error) {
	return s.snapshot, nil
}

func (s *fakeSchemas) GetTables(_ context.Context, _ domain.TenantID) ([]domain.TableInfo, error) {
	return s.snapshot.TableList(), nil
}

func (s *fakeSchemas) Invalidate(tenantID domain.TenantID) {
	s.invalidated = append(s.invalidated, tenantID)
}

func usersSnapshot() *domain.SchemaSnapshot {
	return &domain.SchemaSnapshot{
		TenantID: "t1",
		Tables: map[string]domain.TableInfo{
			"users": {
				Name: "users",
				Columns: []domain.ColumnInfo{
					{Name: "id", DeclaredType: "integer"},
					{Name: "name", DeclaredType: "text"},
					{Name: "age", DeclaredType: "integer", Nullable: true},
				},
			},
		},
	}
}

func newTestCrud(conn *recordingConn) (*CrudEngine, *fakeRouter, *fakeSchemas) {
	schemas := &fakeSchemas{snapshot: usersSnapshot()}
	router := &fakeRouter{conn: conn}
	eng := NewCrudEngine(schemas, router, Limits{DefaultLimit: 100, MaxRows: 1000}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return eng, router, schemas
}

func intPtr(i int) *int { return &i }

func TestSelect_BuildsParameterizedSQL(t *testing.T) {
	conn := &recordingConn{queryRows: []map[string]any{{"id": int64(1), "name": "ada"}}}
	eng, router, _ := newTestCrud(conn)

	res, err := eng.Select(context.Background(), "t1", "users", &domain.Query{
		Filters: []domain.Filter{
			{Column: "name", Op: domain.OpEq, Values: []string{"ada"}},
		},
		Order:      &domain.Order{Column: "age", Direction: domain.Descending},
		Projection: domain.Projection{Columns: []string{"id", "name"}},
		Limit:      intPtr(10),
		Offset:     intPtr(5),
	})
	require.NoError(t, err)

	require.Len(t, conn.statements, 1)
	assert.Equal(t,
		`SELECT "id", "name" FROM "users" WHERE "name" = $1 ORDER BY "age" DESC LIMIT $2 OFFSET $3`,
		conn.statements[0])
	assert.Equal(t, []any{"ada", 10, 5}, conn.args[0])
	assert.Equal(t, []domain.Role{domain.RoleApp}, router.roles)
	assert.Equal(t, int64(1), res.RowCount)
	assert.Len(t, res.Rows, 1)
}

func TestSelect_DefaultAndClampedLimit(t *testing.T) {
	conn := &recordingConn{}
	eng, _, _ := newTestCrud(conn)
	ctx := context.Background()

	_, err := eng.Select(ctx, "t1", "users", &domain.Query{Projection: domain.Projection{Wildcard: true}})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" LIMIT $1`, conn.statements[0])
	assert.Equal(t, []any{100}, conn.args[0])

	// A requested limit above the ceiling is clamped, not rejected.
	_, err = eng.Select(ctx, "t1", "users", &domain.Query{
		Projection: domain.Projection{Wildcard: true},
		Limit:      intPtr(5000),
	})
	require.NoError(t, err)
	assert.Equal(t, []any{1000}, conn.args[1])
}

func TestSelect_UnknownTableAndColumn(t *testing.T) {
	conn := &recordingConn{}
	eng, _, _ := newTestCrud(conn)
	ctx := context.Background()

	_, err := eng.Select(ctx, "t1", "ghost", &domain.Query{Projection: domain.Projection{Wildcard: true}})
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)

	_, err = eng.Select(ctx, "t1", "users", &domain.Query{
		Filters:    []domain.Filter{{Column: "password", Op: domain.OpEq, Values: []string{"x"}}},
		Projection: domain.Projection{Wildcard: true},
	})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Empty(t, conn.statements, "no SQL may run for an invalid query")
}

func TestInsert_OneStatementPerRow(t *testing.T) {
	conn := &recordingConn{queryRows: []map[string]any{{"id": int64(1)}}}
	eng, router, _ := newTestCrud(conn)

	res, err := eng.Insert(context.Background(), "t1", "users", []map[string]any{
		{"name": "ada", "age": 36},
		{"name": "grace"},
	}, true)
	require.NoError(t, err)

	require.Len(t, conn.statements, 2)
	assert.Equal(t, `INSERT INTO "users" ("age", "name") VALUES ($1, $2) RETURNING *`, conn.statements[0])
	assert.Equal(t, []any{36, "ada"}, conn.args[0])
	assert.Equal(t, `INSERT INTO "users" ("name") VALUES ($1) RETURNING *`, conn.statements[1])
	assert.Equal(t, []domain.Role{domain.RoleApp}, router.roles)
	assert.Equal(t, int64(2), res.RowCount)
}

func TestInsert_EmptyRowUsesDefaults(t *testing.T) {
	conn := &recordingConn{execCount: 1}
	eng, _, _ := newTestCrud(conn)

	res, err := eng.Insert(context.Background(), "t1", "users", []map[string]any{{}}, false)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "users" DEFAULT VALUES`, conn.statements[0])
	assert.Equal(t, int64(1), res.RowCount)
}

func TestInsert_RejectsBeforeExecuting(t *testing.T) {
	conn := &recordingConn{}
	eng, _, _ := newTestCrud(conn)
	ctx := context.Background()

	_, err := eng.Insert(ctx, "t1", "users", nil, false)
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)

	// The bad key sits in the second row; the first row must not have run.
	_, err = eng.Insert(ctx, "t1", "users", []map[string]any{
		{"name": "ada"},
		{"name; DROP TABLE users": "x"},
	}, false)
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, err.Error(), "row 1")
	assert.Empty(t, conn.statements)
}

func TestUpdate_RequiresFilterAndValues(t *testing.T) {
	conn := &recordingConn{}
	eng, _, _ := newTestCrud(conn)
	ctx := context.Background()

	var validation *domain.ValidationError
	_, err := eng.Update(ctx, "t1", "users", map[string]any{"name": "x"}, nil)
	require.ErrorAs(t, err, &validation)

	_, err = eng.Update(ctx, "t1", "users", nil,
		[]domain.Filter{{Column: "id", Op: domain.OpEq, Values: []string{"1"}}})
	require.ErrorAs(t, err, &validation)

	assert.Empty(t, conn.statements, "guarded mutations must not reach the database")
}

func TestUpdate_BuildsParameterizedSQL(t *testing.T) {
	conn := &recordingConn{queryRows: []map[string]any{{"id": int64(1)}, {"id": int64(2)}}}
	eng, _, _ := newTestCrud(conn)

	res, err := eng.Update(context.Background(), "t1", "users",
		map[string]any{"name": "ada", "age": 37},
		[]domain.Filter{{Column: "id", Op: domain.OpIn, Values: []string{"1", "2"}}})
	require.NoError(t, err)

	assert.Equal(t,
		`UPDATE "users" SET "age" = $1, "name" = $2 WHERE "id" IN ($3, $4) RETURNING *`,
		conn.statements[0])
	assert.Equal(t, []any{37, "ada", "1", "2"}, conn.args[0])
	assert.Equal(t, int64(2), res.RowCount)
}

func TestDelete_RequiresFilter(t *testing.T) {
	conn := &recordingConn{}
	eng, _, _ := newTestCrud(conn)

	_, err := eng.Delete(context.Background(), "t1", "users", nil)
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Empty(t, conn.statements)
}

func TestDelete_BuildsParameterizedSQL(t *testing.T) {
	conn := &recordingConn{execCount: 3}
	eng, _, _ := newTestCrud(conn)

	res, err := eng.Delete(context.Background(), "t1", "users",
		[]domain.Filter{{Column: "age", Op: domain.OpLt, Values: []string{"18"}}})
	require.NoError(t, err)

	assert.Equal(t, `DELETE FROM "users" WHERE "age" < $1`, conn.statements[0])
	assert.Equal(t, []any{"18"}, conn.args[0])
	assert.Equal(t, int64(3), res.RowCount)
}

func TestCrud_InjectionStaysInParams(t *testing.T) {
	conn := &recordingConn{}
	eng, _, _ := newTestCrud(conn)
	hostile := `'; DROP TABLE users; --`

	_, err := eng.Select(context.Background(), "t1", "users", &domain.Query{
		Filters:    []domain.Filter{{Column: "name", Op: domain.OpEq, Values: []string{hostile}}},
		Projection: domain.Projection{Wildcard: true},
	})
	require.NoError(t, err)

	assert.NotContains(t, conn.statements[0], hostile)
	assert.Contains(t, conn.args[0], hostile)
}
