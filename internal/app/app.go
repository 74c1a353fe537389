// Package app wires the control plane, the tenant connection router, and the
// query engines into a running application.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"basehub/internal/config"
	"basehub/internal/db"
	"basehub/internal/db/crypto"
	"basehub/internal/db/repository"
	"basehub/internal/domain"
	"basehub/internal/engine"
	"basehub/internal/schema"
)

// Deps holds the external dependencies that main() must provide: config, the
// control-plane SQLite handles, and the logger.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Logger  *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Tenants     *repository.TenantRepo
	Credentials *repository.CredentialRepo
	APIKeys     *repository.APIKeyRepo
	Router      *db.Router
	Schemas     *schema.Cache
	Crud        *engine.CrudEngine
	Ddl         *engine.DdlEngine
}

// New wires repositories, encryptor, router, schema cache, and engines from
// the provided deps, then seeds tenants from the optional bootstrap file.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("create encryptor: %w", err)
	}

	tenantRepo := repository.NewTenantRepo(deps.WriteDB, deps.ReadDB)
	credRepo := repository.NewCredentialRepo(deps.WriteDB, deps.ReadDB)
	keyRepo := repository.NewAPIKeyRepo(deps.WriteDB, deps.ReadDB)

	router := db.NewRouter(credRepo, encryptor, db.PoolConfig{
		MaxConns:         int32(cfg.PoolMaxConns), //nolint:gosec // bounded by config validation
		AcquireTimeout:   cfg.AcquireTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}, deps.Logger.With("component", "router"))

	schemas := schema.NewCache(router, cfg.SchemaCacheTTL, deps.Logger.With("component", "schema-cache"))

	limits := engine.Limits{DefaultLimit: cfg.DefaultLimit, MaxRows: cfg.MaxRows}
	crud := engine.NewCrudEngine(schemas, router, limits, deps.Logger.With("component", "crud"))
	ddl := engine.NewDdlEngine(schemas, router, deps.Logger.With("component", "ddl"))

	app := &App{
		Tenants:     tenantRepo,
		Credentials: credRepo,
		APIKeys:     keyRepo,
		Router:      router,
		Schemas:     schemas,
		Crud:        crud,
		Ddl:         ddl,
	}

	if cfg.TenantsFile != "" {
		if err := app.loadBootstrapFile(ctx, cfg.TenantsFile, encryptor, deps.Logger); err != nil {
			return nil, fmt.Errorf("bootstrap tenants from %s: %w", cfg.TenantsFile, err)
		}
	}

	return app, nil
}

// Close releases every tenant pool.
func (a *App) Close() {
	a.Router.Close()
}

var _ domain.ConnectionRouter = (*db.Router)(nil)
var _ domain.SchemaProvider = (*schema.Cache)(nil)
