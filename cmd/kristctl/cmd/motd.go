package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// motdCmd replaces the message of the day
var motdCmd = &cobra.Command{
	Use:   "motd <message>",
	Short: "Set the message of the day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := client().SetMotd(ctx, args[0]); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Message of the day updated")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(motdCmd)
}
