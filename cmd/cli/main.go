// Command cli administers the control plane: tenants, credentials, API keys,
// and admin tokens. It operates on the metadata store directly and never
// touches tenant databases.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"basehub/internal/config"
	internaldb "basehub/internal/db"
	"basehub/internal/db/crypto"
	"basehub/internal/db/repository"
	"basehub/internal/domain"
	"basehub/internal/middleware"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "basehubctl",
		Short:         "Administer the tenant control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTenantCmd(), newAPIKeyCmd(), newTokenCmd())
	return root
}

// openControlPlane loads config, opens the metadata store, and runs
// migrations so a fresh database works out of the box.
func openControlPlane() (*config.Config, *sql.DB, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not load .env:", err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, err
	}
	conn, err := internaldb.OpenSQLite(cfg.MetaDBPath, "write", 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open metadata store: %w", err)
	}
	if err := internaldb.RunMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return cfg, conn, nil
}

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	var name, appDSN, ownerDSN string
	add := &cobra.Command{
		Use:   "add <tenant-id>",
		Short: "Register a tenant and store its encrypted role credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := openControlPlane()
			if err != nil {
				return err
			}
			defer conn.Close() //nolint:errcheck

			encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
			if err != nil {
				return err
			}

			ctx := context.Background()
			tenantID := domain.TenantID(args[0])
			if name == "" {
				name = args[0]
			}
			if err := repository.NewTenantRepo(conn, conn).Create(ctx, &domain.Tenant{ID: tenantID, Name: name}); err != nil {
				return err
			}

			creds := repository.NewCredentialRepo(conn, conn)
			for role, dsn := range map[domain.Role]string{
				domain.RoleApp:   appDSN,
				domain.RoleOwner: ownerDSN,
			} {
				if dsn == "" {
					continue
				}
				ciphertext, err := encryptor.Encrypt(dsn)
				if err != nil {
					return err
				}
				if err := creds.Upsert(ctx, &domain.TenantCredential{
					TenantID: tenantID, Role: role, Ciphertext: ciphertext,
				}); err != nil {
					return err
				}
			}

			fmt.Printf("tenant %s created\n", tenantID)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "Display name (defaults to the tenant ID)")
	add.Flags().StringVar(&appDSN, "app-dsn", "", "Connection string for the restricted app role")
	add.Flags().StringVar(&ownerDSN, "owner-dsn", "", "Connection string for the privileged owner role")

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, conn, err := openControlPlane()
			if err != nil {
				return err
			}
			defer conn.Close() //nolint:errcheck

			tenants, err := repository.NewTenantRepo(conn, conn).List(context.Background())
			if err != nil {
				return err
			}
			for _, t := range tenants {
				fmt.Printf("%s\t%s\t%s\n", t.ID, t.Name, t.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newAPIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}

	var role string
	create := &cobra.Command{
		Use:   "create <tenant-id>",
		Short: "Create an API key for a tenant (the raw key is printed once)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if !r.Valid() {
				return fmt.Errorf("invalid role %q: must be app or owner", role)
			}

			_, conn, err := openControlPlane()
			if err != nil {
				return err
			}
			defer conn.Close() //nolint:errcheck

			rawKey, err := generateKey()
			if err != nil {
				return err
			}
			err = repository.NewAPIKeyRepo(conn, conn).Create(context.Background(), &domain.APIKey{
				KeyHash:  middleware.HashAPIKey(rawKey),
				TenantID: domain.TenantID(args[0]),
				Role:     r,
			})
			if err != nil {
				return err
			}

			fmt.Println(rawKey)
			return nil
		},
	}
	create.Flags().StringVar(&role, "role", string(domain.RoleApp), "Capability role for the key (app or owner)")

	cmd.AddCommand(create)
	return cmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage admin tokens",
	}

	var role string
	var ttl time.Duration
	create := &cobra.Command{
		Use:   "create <tenant-id>",
		Short: "Sign a short-lived admin JWT for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if !r.Valid() {
				return fmt.Errorf("invalid role %q: must be app or owner", role)
			}

			cfg, conn, err := openControlPlane()
			if err != nil {
				return err
			}
			defer conn.Close() //nolint:errcheck
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not configured")
			}

			token, err := middleware.IssueToken(cfg.JWTSecret, domain.TenantID(args[0]), r, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	create.Flags().StringVar(&role, "role", string(domain.RoleOwner), "Capability role for the token (app or owner)")
	create.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	cmd.AddCommand(create)
	return cmd
}

// generateKey returns a 256-bit random key with a recognizable prefix.
func generateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return "bh_" + hex.EncodeToString(buf), nil
}
