package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/expander"
	"github.com/anekos/noir/store"
)

func aliasCommand() *cobra.Command {
	var local, recursive bool

	cmd := &cobra.Command{
		Use:   "alias [name [expression...]]",
		Short: "List, expand, or define query aliases",
		RunE: func(_ *cobra.Command, args []string) error {
			return withCatalog(func(ctx context.Context, st *store.Store, aliases *alias.Table) error {
				x, err := mergedExpander(ctx, st, aliases)
				if err != nil {
					return err
				}

				if len(args) == 0 {
					for _, name := range x.Names() {
						fmt.Println(name)
					}
					return nil
				}

				name := args[0]
				if len(args) == 1 {
					expanded, err := x.Expand(name)
					if err != nil {
						return err
					}
					fmt.Println(expanded)
					return nil
				}

				expression := join(args[1:])
				if local {
					return st.UpsertAlias(ctx, name, expression, recursive)
				}
				aliases.Add(name, expression, recursive)
				return aliases.Save()
			})
		},
	}

	cmd.Flags().BoolVarP(&local, "local", "l", false, "store in the catalog instead of the global file")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "re-expand the replacement")
	return cmd
}

func unaliasCommand() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "unalias <name>",
		Short: "Delete a query alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withCatalog(func(ctx context.Context, st *store.Store, aliases *alias.Table) error {
				if local {
					return st.DeleteAlias(ctx, args[0])
				}
				aliases.Delete(args[0])
				return aliases.Save()
			})
		},
	}

	cmd.Flags().BoolVarP(&local, "local", "l", false, "delete from the catalog instead of the global file")
	return cmd
}

func expandCommand() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "expand <expression...>",
		Short: "Print the compiled form of an expression",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withCatalog(func(ctx context.Context, st *store.Store, aliases *alias.Table) error {
				x, err := mergedExpander(ctx, st, aliases)
				if err != nil {
					return err
				}
				expanded, err := x.Expand(join(args))
				if err != nil {
					return err
				}
				if full {
					fmt.Println(store.SelectPrefix + expanded)
				} else {
					fmt.Println(expanded)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&full, "full", "f", false, "print the whole SELECT statement")
	return cmd
}

// mergedExpander builds an expander from the catalog-local aliases
// overlaid on the global table.
func mergedExpander(ctx context.Context, st *store.Store, aliases *alias.Table) (*expander.Expander, error) {
	local, err := st.Aliases(ctx)
	if err != nil {
		return nil, err
	}
	return expander.New(local, aliases.Map()), nil
}
