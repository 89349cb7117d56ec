// Command noir is the image catalog CLI: ingest directories of images,
// tag them, and search them with the noir expression language, locally or
// over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/anekos/noir"
	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/store"
)

var (
	cfg     noir.Config
	verbose bool
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:           "noir",
		Short:         "Local image catalog and search",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.DatabaseName, "name", noir.DefaultDatabaseName, "database name")
	flags.StringVar(&cfg.DatabasePath, "path", "", "database file (overrides --name)")
	flags.StringVar(&cfg.AliasPath, "alias", "", "global alias file")
	flags.IntVar(&cfg.MaxRetry, "max-retry", noir.DefaultMaxRetry, "maximum busy retries")
	flags.BoolVar(&verbose, "verbose", false, "verbose logging")

	root.AddCommand(
		aliasCommand(), unaliasCommand(), expandCommand(),
		getCommand(), historyCommand(),
		loadCommand(), loadListCommand(),
		searchCommand(), similarCommand(),
		tagCommand(), vacuumCommand(),
		serverCommand(), completionsCommand(root),
		pathCommand(), resetCommand(),
	)

	if err := root.Execute(); err != nil {
		if errors.Is(err, noir.ErrVoid) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// withCatalog opens the catalog and the global alias table and runs fn,
// re-running the whole command on busy errors per the retry policy.
func withCatalog(fn func(ctx context.Context, st *store.Store, aliases *alias.Table) error) error {
	return store.Retry(cfg.MaxRetry, func() error {
		dbFile, err := cfg.DatabaseFile()
		if err != nil {
			return err
		}
		st, err := store.Open(dbFile)
		if err != nil {
			return err
		}
		defer st.Close()

		aliasFile, err := cfg.AliasFile()
		if err != nil {
			return err
		}
		aliases, err := alias.Open(aliasFile)
		if err != nil {
			return err
		}

		return fn(context.Background(), st, aliases)
	})
}

// join rebuilds a single expression from argv words.
func join(words []string) string {
	result := ""
	for i, w := range words {
		if i > 0 {
			result += " "
		}
		result += w
	}
	return result
}
