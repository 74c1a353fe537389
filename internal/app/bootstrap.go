package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"basehub/internal/db/crypto"
	"basehub/internal/domain"
	"basehub/internal/middleware"
)

// bootstrapFile is the YAML shape of the TENANTS_FILE. DSNs are encrypted and
// API keys hashed on load; neither is ever stored in plaintext.
type bootstrapFile struct {
	Tenants []bootstrapTenant `yaml:"tenants"`
}

type bootstrapTenant struct {
	ID       string            `yaml:"id"`
	Name     string            `yaml:"name"`
	AppDSN   string            `yaml:"appDsn"`
	OwnerDSN string            `yaml:"ownerDsn"`
	APIKeys  []bootstrapAPIKey `yaml:"apiKeys"`
}

type bootstrapAPIKey struct {
	Key  string `yaml:"key"`
	Role string `yaml:"role"`
}

// loadBootstrapFile seeds tenants, credentials, and API keys from a YAML
// file. Idempotent: existing tenants are kept, credentials re-upserted (so
// rotated DSNs take effect), and duplicate API keys ignored.
func (a *App) loadBootstrapFile(ctx context.Context, path string, encryptor *crypto.Encryptor, logger *slog.Logger) error {
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil {
		return fmt.Errorf("read bootstrap file: %w", err)
	}
	var file bootstrapFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse bootstrap file: %w", err)
	}

	for _, bt := range file.Tenants {
		if bt.ID == "" {
			return fmt.Errorf("bootstrap tenant with empty id")
		}
		tenantID := domain.TenantID(bt.ID)

		err := a.Tenants.Create(ctx, &domain.Tenant{ID: tenantID, Name: bt.Name})
		var conflict *domain.ConflictError
		switch {
		case err == nil:
			logger.Info("bootstrap tenant created", "tenant", tenantID)
		case errors.As(err, &conflict):
			// Already present from a previous run.
		default:
			return err
		}

		for role, dsn := range map[domain.Role]string{
			domain.RoleApp:   bt.AppDSN,
			domain.RoleOwner: bt.OwnerDSN,
		} {
			if dsn == "" {
				continue
			}
			ciphertext, err := encryptor.Encrypt(dsn)
			if err != nil {
				return fmt.Errorf("encrypt %s credential for tenant %q: %w", role, tenantID, err)
			}
			if err := a.Credentials.Upsert(ctx, &domain.TenantCredential{
				TenantID: tenantID, Role: role, Ciphertext: ciphertext,
			}); err != nil {
				return err
			}
		}

		for _, bk := range bt.APIKeys {
			role := domain.Role(bk.Role)
			if bk.Role == "" {
				role = domain.RoleApp
			}
			if !role.Valid() {
				return fmt.Errorf("bootstrap api key for tenant %q has invalid role %q", tenantID, bk.Role)
			}
			err := a.APIKeys.Create(ctx, &domain.APIKey{
				KeyHash:  middleware.HashAPIKey(bk.Key),
				TenantID: tenantID,
				Role:     role,
			})
			if err != nil && !errors.As(err, &conflict) {
				return err
			}
		}
	}

	logger.Info("bootstrap file loaded", "tenants", len(file.Tenants))
	return nil
}
