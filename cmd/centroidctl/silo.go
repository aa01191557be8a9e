package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"centroid/internal/silo"
	"centroid/internal/store"
	"centroid/internal/vectorstore"
)

var siloCmd = &cobra.Command{
	Use:   "silo",
	Short: "Manage tenants (centroid_silo catalog)",
}

var siloCreateLegacy bool

var siloCreateCmd = &cobra.Command{
	Use:   "create <tenant-id>",
	Short: "Create a tenant and its per-tenant schema/index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSiloManager(cmd.Context(), func(ctx context.Context, mgr *silo.Manager) error {
			t, err := mgr.CreateTenant(ctx, args[0], siloCreateLegacy)
			if err != nil {
				return err
			}
			fmt.Printf("created tenant %q (index=%s, legacy=%v)\n", t.TenantID, t.IndexName, t.IsLegacy)
			return nil
		})
	},
}

var siloDeleteCmd = &cobra.Command{
	Use:   "delete <tenant-id>",
	Short: "Delete a tenant and drop its schema/index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSiloManager(cmd.Context(), func(ctx context.Context, mgr *silo.Manager) error {
			t, err := mgr.DeleteTenant(ctx, args[0])
			if err != nil {
				return err
			}
			if t == nil {
				fmt.Printf("no such tenant %q\n", args[0])
				return nil
			}
			fmt.Printf("deleted tenant %q\n", t.TenantID)
			return nil
		})
	},
}

var siloListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSiloManager(cmd.Context(), func(ctx context.Context, mgr *silo.Manager) error {
			tenants, err := mgr.ListTenants(ctx)
			if err != nil {
				return err
			}
			for _, t := range tenants {
				fmt.Printf("%s\tindex=%s\tlegacy=%v\tcreated=%s\n", t.TenantID, t.IndexName, t.IsLegacy, t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		})
	},
}

var siloChangeIndexCmd = &cobra.Command{
	Use:   "change-index <tenant-id> <new-index-name>",
	Short: "Repoint a tenant at a different vector index (blue/green reindex cutover)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSiloManager(cmd.Context(), func(ctx context.Context, mgr *silo.Manager) error {
			if err := mgr.ChangeIndex(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("tenant %q now points at index %q\n", args[0], args[1])
			return nil
		})
	},
}

func init() {
	siloCreateCmd.Flags().BoolVar(&siloCreateLegacy, "legacy", false, "create this tenant in the legacy slot")
	siloCmd.AddCommand(siloCreateCmd, siloDeleteCmd, siloListCmd, siloChangeIndexCmd)
}

// withSiloManager connects Postgres and Qdrant, ensures the catalog schema
// exists, and runs fn, closing both connections afterward — the same
// connect/ensure/defer-close sequence serve.go uses, kept separate here so a
// one-shot silo subcommand doesn't need an embedding registry or a Service.
func withSiloManager(ctx context.Context, fn func(context.Context, *silo.Manager) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	vecCfg, err := parseVectorDSN(cfg.Vector.DSN)
	if err != nil {
		return fmt.Errorf("parse vector dsn: %w", err)
	}
	vec, err := vectorstore.NewClient(vecCfg)
	if err != nil {
		return fmt.Errorf("connect vector store: %w", err)
	}
	defer vec.Close()

	st := store.New(pool)
	mgr := silo.New(pool, st, vec, cfg.Postgres.AdminSchema, cfg.Vector.Dimensions)
	if err := mgr.EnsureCatalog(ctx); err != nil {
		return fmt.Errorf("ensure silo catalog: %w", err)
	}

	return fn(ctx, mgr)
}
