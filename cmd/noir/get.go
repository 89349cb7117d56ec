package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/output"
	"github.com/anekos/noir/store"
)

func getCommand() *cobra.Command {
	var formatName string

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Show one catalog record",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			format, err := output.Parse(formatName)
			if err != nil {
				return err
			}
			return withCatalog(func(ctx context.Context, st *store.Store, _ *alias.Table) error {
				meta, err := st.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if meta == nil {
					return fmt.Errorf("entry not found: %s", args[0])
				}
				return format.Write(os.Stdout, meta)
			})
		},
	}

	cmd.Flags().StringVarP(&formatName, "format", "f", "simple", "output format (simple, json, pretty-json, chrysoberyl)")
	return cmd
}

func historyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print past search expressions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withCatalog(func(ctx context.Context, st *store.Store, _ *alias.Table) error {
				entries, err := st.SearchHistory(ctx)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Println(e.Expression)
				}
				return nil
			})
		},
	}
}
