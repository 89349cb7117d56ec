package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/loader"
	"github.com/anekos/noir/store"
)

func loaderFlags(cmd *cobra.Command, config *loader.Config) {
	flags := cmd.Flags()
	flags.BoolVarP(&config.CheckExtension, "check-extension", "c", false, "skip files without an image extension")
	flags.BoolVarP(&config.ComputeDhash, "dhash", "d", false, "compute the perceptual hash")
	flags.BoolVarP(&config.Update, "update", "u", false, "re-ingest already catalogued paths")
	flags.BoolVar(&config.DryRun, "dry-run", false, "print candidates, write nothing")
	flags.BoolVarP(&config.SkipErrors, "skip-errors", "s", false, "log per-file errors and continue")
	flags.StringVarP(&config.TagGenerator, "tag-script", "t", "", "program generating tags per ingested file")
	flags.StringVar(&config.TagSource, "tag-source", loader.DefaultTagSource, "provenance for generated tags")
}

func loadCommand() *cobra.Command {
	var config loader.Config

	cmd := &cobra.Command{
		Use:   "load <path...>",
		Short: "Ingest image files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withCatalog(func(ctx context.Context, st *store.Store, _ *alias.Table) error {
				tx, err := st.Transaction(ctx)
				if err != nil {
					return err
				}
				defer tx.Release()

				ld := loader.New(st, config)
				for _, path := range args {
					if err := ld.Load(ctx, path); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	loaderFlags(cmd, &config)
	return cmd
}

func loadListCommand() *cobra.Command {
	var config loader.Config

	cmd := &cobra.Command{
		Use:   "load-list <list-file...>",
		Short: "Ingest paths listed in files (use - for stdin)",
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"-"}
			}
			return withCatalog(func(ctx context.Context, st *store.Store, _ *alias.Table) error {
				tx, err := st.Transaction(ctx)
				if err != nil {
					return err
				}
				defer tx.Release()

				ld := loader.New(st, config)
				for _, path := range args {
					if path == "-" {
						if err := ld.LoadList(ctx, os.Stdin); err != nil {
							return err
						}
						continue
					}
					file, err := os.Open(path)
					if err != nil {
						return err
					}
					err = ld.LoadList(ctx, file)
					file.Close()
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	loaderFlags(cmd, &config)
	return cmd
}
