package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/journalscope/internal/config"
)

func (a *app) boundaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boundary",
		Short: "Maintain the transaction boundary document",
	}
	cmd.AddCommand(a.addChainCmd())
	return cmd
}

func (a *app) addChainCmd() *cobra.Command {
	var noBackup bool
	cmd := &cobra.Command{
		Use:   "add-chain <file> <tid...>",
		Short: "Add chaining transaction ids to an XML boundary document",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := config.AddChainIDs(args[0], args[1:], !noBackup)
			if err != nil {
				return err
			}
			a.logger.Info().
				Str("path", args[0]).
				Strs("chain_ids", b.ChainIDs).
				Bool("backup", !noBackup).
				Msg("Boundary document updated")
			fmt.Fprintf(cmd.OutOrStdout(), "chaining ids: %s\n", strings.Join(b.ChainIDs, ","))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "do not keep a .bak copy of the previous document")
	return cmd
}
