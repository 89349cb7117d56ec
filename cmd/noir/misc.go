package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/anekos/noir/alias"
	"github.com/anekos/noir/store"
)

func pathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the catalog database path",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			file, err := cfg.DatabaseFile()
			if err != nil {
				return err
			}
			fmt.Println(file)
			return nil
		},
	}
}

func resetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete all image and tag data",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			fmt.Print("Are you sure? (yes/NO): ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return err
			}
			if strings.ToLower(strings.TrimSpace(line)) != "yes" {
				fmt.Println("Canceled")
				return nil
			}
			return withCatalog(func(ctx context.Context, st *store.Store, _ *alias.Table) error {
				if err := st.Reset(ctx); err != nil {
					return err
				}
				color.New(color.FgRed).Println("All data have been deleted.")
				return nil
			})
		},
	}
}

func completionsCommand(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:       "completions <bash|fish|zsh>",
		Short:     "Emit shell completion",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "fish", "zsh"},
		RunE: func(_ *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return root.GenBashCompletion(os.Stdout)
			case "fish":
				return root.GenFishCompletion(os.Stdout, true)
			case "zsh":
				return root.GenZshCompletion(os.Stdout)
			}
			return fmt.Errorf("unknown shell: %s", args[0])
		},
	}
}
