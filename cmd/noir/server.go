package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/download"
	"github.com/anekos/noir/server"
	"github.com/anekos/noir/store"
)

func serverCommand() *cobra.Command {
	var port int
	var root, downloadTo string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withCatalog(func(ctx context.Context, st *store.Store, aliases *alias.Table) error {
				var worker *download.Worker
				if downloadTo != "" {
					// The worker owns its own catalog handle; the engine's
					// file locking plus the retry wrapper cover the overlap
					// with HTTP handlers.
					workerStore, err := st.Clone()
					if err != nil {
						return err
					}
					worker = download.NewWorker(workerStore, downloadTo)
					if err := worker.Start(ctx); err != nil {
						return err
					}
				}

				srv := server.New(server.Config{
					Store:      st,
					Aliases:    aliases,
					Root:       root,
					DownloadTo: downloadTo,
					Worker:     worker,
				})
				return srv.Run(port)
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port")
	cmd.Flags().StringVarP(&root, "root", "r", "", "static file directory")
	cmd.Flags().StringVarP(&downloadTo, "download-to", "d", "", "enable downloading beneath this directory")
	return cmd
}
