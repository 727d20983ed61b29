package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gobeaver/ingestkit"
)

var driversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "List the registered remote stores",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range ingestkit.Drivers() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	rootCmd.AddCommand(driversCmd)
}
