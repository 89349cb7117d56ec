package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anekos/noir"
	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/loader"
	"github.com/anekos/noir/store"
)

func tagCommand() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage tag bindings",
	}
	cmd.PersistentFlags().StringVar(&source, "source", loader.DefaultTagSource, "tag provenance")

	withTags := func(fn func(ctx context.Context, st *store.Store, path string, tags []noir.Tag, source string) error) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, args []string) error {
			tags, err := noir.NewTags(args[1:])
			if err != nil {
				return err
			}
			return withCatalog(func(ctx context.Context, st *store.Store, _ *alias.Table) error {
				canonical, err := noir.Canonical(args[0])
				if err != nil {
					return err
				}
				return fn(ctx, st, canonical, tags, source)
			})
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <path> <tag...>",
			Short: "Bind tags to an image",
			Args:  cobra.MinimumNArgs(1),
			RunE: withTags(func(ctx context.Context, st *store.Store, path string, tags []noir.Tag, source string) error {
				return st.AddTags(ctx, path, tags, source)
			}),
		},
		&cobra.Command{
			Use:   "remove <path> <tag...>",
			Short: "Remove tag bindings",
			Args:  cobra.MinimumNArgs(1),
			RunE: withTags(func(ctx context.Context, st *store.Store, path string, tags []noir.Tag, source string) error {
				return st.DeleteTags(ctx, path, tags, source)
			}),
		},
		&cobra.Command{
			Use:   "set <path> <tag...>",
			Short: "Replace the bindings for a source",
			Args:  cobra.MinimumNArgs(1),
			RunE: withTags(func(ctx context.Context, st *store.Store, path string, tags []noir.Tag, source string) error {
				return st.SetTags(ctx, path, tags, source)
			}),
		},
		&cobra.Command{
			Use:   "clear <path>",
			Short: "Remove all bindings for a source",
			Args:  cobra.ExactArgs(1),
			RunE: withTags(func(ctx context.Context, st *store.Store, path string, _ []noir.Tag, source string) error {
				return st.ClearTags(ctx, path, source)
			}),
		},
		&cobra.Command{
			Use:   "show [path]",
			Short: "Show the tags of an image, or every tag",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return withCatalog(func(ctx context.Context, st *store.Store, _ *alias.Table) error {
					var tags []string
					var err error
					if len(args) == 1 {
						var canonical string
						canonical, err = noir.Canonical(args[0])
						if err != nil {
							return err
						}
						tags, err = st.TagsByPath(ctx, canonical)
					} else {
						tags, err = st.Tags(ctx)
					}
					if err != nil {
						return err
					}
					for _, tag := range tags {
						fmt.Println(tag)
					}
					return nil
				})
			},
		},
	)

	return cmd
}
