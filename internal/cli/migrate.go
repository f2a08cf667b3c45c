package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pitabwire/govconsole/internal/store"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the store schema",
		Long: `Create the tables for collections, funding rounds and proposals in the
configured store. With --seed, also add demo data; existing names are left
in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runMigrate(ctx, rootOpts, seed, cmd)
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "add demo data after migrating")

	return cmd
}

func runMigrate(ctx context.Context, rootOpts *RootOptions, seed bool, cmd *cobra.Command) error {
	cfg, err := rootOpts.load()
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.ResolveDSN(), cfg.Store.MaxConns)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.Store.Driver)

	if !seed {
		return nil
	}
	if err := store.Seed(ctx, st); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "demo data seeded")
	return nil
}
