package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tmpim/krist/internal/switches"
)

// switchCmd flips a feature switch
var switchCmd = &cobra.Command{
	Use:       "switch mining|transactions on|off",
	Short:     "Turn a feature switch on or off",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{switches.Mining, switches.Transactions},
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !switches.Valid(name) {
			return fmt.Errorf("unknown switch %q", name)
		}

		var enabled bool
		switch args[1] {
		case "on":
			enabled = true
		case "off":
		default:
			return fmt.Errorf("state must be on or off, got %q", args[1])
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := client().SetSwitch(ctx, name, enabled); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Switch %s is now %s\n", name, args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(switchCmd)
}
