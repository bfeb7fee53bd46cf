package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Additional-Code/storefront/internal/app"
	"github.com/Additional-Code/storefront/internal/config"
	"github.com/Additional-Code/storefront/internal/database"
	"github.com/Additional-Code/storefront/internal/migration"
	"github.com/Additional-Code/storefront/internal/seeder"
	"github.com/Additional-Code/storefront/internal/tenant"
)

// NewRootCommand builds the root storefront CLI command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "storefront",
		Short: "Multi-tenant storefront service and tooling",
	}

	root.AddCommand(newStartCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newTenantCmd())

	return root
}

// Execute runs the storefront CLI until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "start",
		Aliases: []string{"run"},
		Short:   "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUntilDone(cmd.Context(), fx.New(app.Module))
		},
	}
}

// tenantsFlag reads and validates the repeatable --tenant flag.
func tenantsFlag(cmd *cobra.Command) ([]string, error) {
	ids, _ := cmd.Flags().GetStringSlice("tenant")
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one --tenant is required")
	}
	for i, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if err := tenant.Validate(id); err != nil {
			return nil, fmt.Errorf("tenant %q: %w", ids[i], err)
		}
		ids[i] = id
	}
	return ids, nil
}

func addTenantFlag(cmd *cobra.Command) {
	cmd.Flags().StringSlice("tenant", nil, "Tenant (shop id) to operate on; repeatable or comma separated")
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run tenant database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenants, err := tenantsFlag(cmd)
			if err != nil {
				return err
			}
			var mig *migration.Migrator
			opts := fx.Options(app.Core, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				for _, id := range tenants {
					if err := mig.Up(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: migrations applied\n", id)
				}
				return nil
			})
		},
	}
	addTenantFlag(upCmd)

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenants, err := tenantsFlag(cmd)
			if err != nil {
				return err
			}
			steps, _ := cmd.Flags().GetInt("steps")
			all, _ := cmd.Flags().GetBool("all")
			var mig *migration.Migrator
			opts := fx.Options(app.Core, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				for _, id := range tenants {
					if err := mig.Down(ctx, id, steps, all); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: migrations rolled back\n", id)
				}
				return nil
			})
		},
	}
	addTenantFlag(downCmd)
	downCmd.Flags().Int("steps", 1, "Number of migration steps to rollback")
	downCmd.Flags().Bool("all", false, "Rollback all applied migrations")

	cmd.AddCommand(upCmd, downCmd)
	return cmd
}

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the demo catalog into tenant databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenants, err := tenantsFlag(cmd)
			if err != nil {
				return err
			}
			var seed *seeder.Seeder
			opts := fx.Options(app.Core, seeder.Module, fx.Populate(&seed))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				for _, id := range tenants {
					if err := seed.Catalog(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: seed data applied\n", id)
				}
				return nil
			})
		},
	}
	addTenantFlag(cmd)
	return cmd
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage background workers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run worker engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUntilDone(cmd.Context(), fx.New(app.Worker))
		},
	})
	return cmd
}

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Inspect tenant settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dsn [shop-id]",
		Short: "Print the database DSN a tenant resolves to (auth token masked)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.ToLower(strings.TrimSpace(args[0]))
			if err := tenant.Validate(id); err != nil {
				return fmt.Errorf("tenant %q: %w", args[0], err)
			}
			cfg, err := config.New()
			if err != nil {
				return err
			}
			token := ""
			if cfg.Database.AuthToken != "" {
				token = "****"
			}
			fmt.Fprintln(cmd.OutOrStdout(), database.DSN(cfg.Database.DSNTemplate, id, token))
			return nil
		},
	})
	return cmd
}

// runUntilDone starts application and stops it once ctx is cancelled.
func runUntilDone(ctx context.Context, application *fx.App) error {
	if err := application.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return application.Stop(stopCtx)
}

func runWithApp(ctx context.Context, opts fx.Option, fn func(context.Context) error) error {
	application := fx.New(opts, fx.NopLogger)
	if err := application.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = application.Stop(stopCtx)
	}()
	return fn(ctx)
}
