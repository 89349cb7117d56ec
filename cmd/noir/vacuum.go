package main

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/store"
)

func vacuumCommand() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "vacuum",
		Short: "Delete catalog rows whose file no longer exists",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withCatalog(func(ctx context.Context, st *store.Store, _ *alias.Table) error {
				bar := progressbar.NewOptions(-1,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("vacuuming"),
					progressbar.OptionSpinnerType(14),
				)

				removed := 0
				err := st.Vacuum(ctx, prefix, func(path string, n int) error {
					removed = n
					return bar.Add(1)
				})
				bar.Finish()
				if err != nil {
					return err
				}

				color.New(color.FgYellow).Fprintf(os.Stderr, "\nVacuumed %d files\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "only rows whose path starts with this prefix")
	return cmd
}
