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

func newTestDdl(conn *recordingConn) (*DdlEngine, *fakeRouter, *fakeSchemas) {
	schemas := &fakeSchemas{snapshot: usersSnapshot()}
	router := &fakeRouter{conn: conn}
	eng := NewDdlEngine(schemas, router, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return eng, router, schemas
}

func TestDdl_CreateTable(t *testing.T) {
	conn := &recordingConn{}
	eng, router, schemas := newTestDdl(conn)

	err := eng.CreateTable(context.Background(), "t1", "orders", []domain.ColumnDefinition{
		{Name: "id", Type: "bigint", PrimaryKey: true},
		{Name: "user_id", Type: "bigint", References: &domain.Reference{Table: "users", Column: "id"}},
		{Name: "total", Type: "numeric(10,2)", Default: "0"},
	})
	require.NoError(t, err)

	require.Len(t, conn.statements, 1)
	assert.Equal(t,
		`CREATE TABLE "orders" ("id" bigint PRIMARY KEY, "user_id" bigint REFERENCES "users"("id"), "total" numeric(10,2) DEFAULT 0)`,
		conn.statements[0])
	assert.Equal(t, []domain.Role{domain.RoleOwner}, router.roles)
	assert.Equal(t, []domain.TenantID{"t1"}, schemas.invalidated)
}

func TestDdl_InvalidInputNeverExecutes(t *testing.T) {
	conn := &recordingConn{}
	eng, _, schemas := newTestDdl(conn)
	ctx := context.Background()

	cases := []func() error{
		func() error {
			return eng.CreateTable(ctx, "t1", "orders; DROP TABLE users", []domain.ColumnDefinition{{Name: "id", Type: "bigint"}})
		},
		func() error {
			return eng.CreateTable(ctx, "t1", "orders", []domain.ColumnDefinition{{Name: "id", Type: "bigint; DROP TABLE users"}})
		},
		func() error {
			return eng.CreateTable(ctx, "t1", "orders", []domain.ColumnDefinition{{Name: "id", Type: "bigint", Default: "(SELECT 1)"}})
		},
		func() error { return eng.DropTable(ctx, "t1", "pg_catalog") },
		func() error {
			return eng.AddColumn(ctx, "t1", "users", domain.ColumnDefinition{Name: "x", Type: "blob"})
		},
		func() error { return eng.DropColumn(ctx, "t1", "users", `na"me`) },
		func() error { return eng.RenameTable(ctx, "t1", "users", "information_schema") },
		func() error { return eng.RenameColumn(ctx, "t1", "users", "name", "1bad") },
	}
	for _, call := range cases {
		err := call()
		var validation *domain.ValidationError
		require.ErrorAs(t, err, &validation)
	}

	assert.Empty(t, conn.statements, "rejected DDL must not reach the database")
	assert.Empty(t, schemas.invalidated)
}

func TestDdl_AlterOperations(t *testing.T) {
	conn := &recordingConn{}
	eng, _, schemas := newTestDdl(conn)
	ctx := context.Background()

	require.NoError(t, eng.AddColumn(ctx, "t1", "users", domain.ColumnDefinition{Name: "email", Type: "text", Unique: true}))
	require.NoError(t, eng.DropColumn(ctx, "t1", "users", "age"))
	require.NoError(t, eng.RenameTable(ctx, "t1", "users", "members"))
	require.NoError(t, eng.RenameColumn(ctx, "t1", "members", "name", "full_name"))
	require.NoError(t, eng.DropTable(ctx, "t1", "members"))

	assert.Equal(t, []string{
		`ALTER TABLE "users" ADD COLUMN "email" text UNIQUE`,
		`ALTER TABLE "users" DROP COLUMN "age"`,
		`ALTER TABLE "users" RENAME TO "members"`,
		`ALTER TABLE "members" RENAME COLUMN "name" TO "full_name"`,
		`DROP TABLE "members"`,
	}, conn.statements)
	assert.Len(t, schemas.invalidated, 5)
}

func TestDdl_ExecFailureSkipsInvalidation(t *testing.T) {
	conn := &recordingConn{err: assert.AnError}
	eng, _, schemas := newTestDdl(conn)

	err := eng.DropTable(context.Background(), "t1", "users")
	require.Error(t, err)
	assert.Empty(t, schemas.invalidated)
}
