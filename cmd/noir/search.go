package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/anekos/noir"
	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/imagemeta"
	"github.com/anekos/noir/output"
	"github.com/anekos/noir/store"
)

func searchCommand() *cobra.Command {
	var formatName string
	var vacuum bool

	cmd := &cobra.Command{
		Use:   "search <where...>",
		Short: "Search the catalog with the noir expression language",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			format, err := output.Parse(formatName)
			if err != nil {
				return err
			}
			return withCatalog(func(ctx context.Context, st *store.Store, aliases *alias.Table) error {
				x, err := mergedExpander(ctx, st, aliases)
				if err != nil {
					return err
				}
				expression := join(args)
				expanded, err := x.Expand(expression)
				if err != nil {
					return err
				}
				if err := st.AddSearchHistory(ctx, expression); err != nil {
					return err
				}

				out := bufio.NewWriter(os.Stdout)
				defer out.Flush()
				vacuumedNote := color.New(color.FgYellow)

				err = st.Select(ctx, expanded, vacuum, func(meta *imagemeta.Meta, vacuumed bool) error {
					if vacuumed {
						vacuumedNote.Fprintf(os.Stderr, "Vacuumed: %s\n", meta.Path)
						return nil
					}
					return format.Write(out, meta)
				})
				if err != nil {
					return err
				}
				return noir.MapPipe(out.Flush())
			})
		},
	}

	cmd.Flags().StringVarP(&formatName, "format", "f", "simple", "output format (simple, json, pretty-json, chrysoberyl)")
	cmd.Flags().BoolVarP(&vacuum, "vacuum", "v", false, "delete rows whose file is missing while searching")
	return cmd
}

func similarCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "similar <path>",
		Short: "Find near-duplicates of an image by perceptual hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withCatalog(func(ctx context.Context, st *store.Store, _ *alias.Table) error {
				meta, err := st.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if meta == nil {
					return fmt.Errorf("entry not found: %s", args[0])
				}
				if meta.Dhash == nil {
					return fmt.Errorf("no dhash recorded for %s (load with --dhash)", meta.Path)
				}
				similar, err := st.Similar(ctx, *meta.Dhash, limit)
				if err != nil {
					return err
				}
				for _, s := range similar {
					fmt.Printf("%d\t%s\n", s.Distance, s.Meta.Path)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "number of neighbours")
	return cmd
}
