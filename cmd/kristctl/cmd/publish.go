package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tmpim/krist/internal/bridge"
)

var (
	payloadFile string
	newWork     uint64
)

// publishCmd sends an event to the node's websocket sessions
var publishCmd = &cobra.Command{
	Use:       "publish block|transaction|name",
	Short:     "Publish an event to subscribed sessions",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"block", "transaction", "name"},
	RunE: func(cmd *cobra.Command, args []string) error {
		category := args[0]

		payload, err := os.ReadFile(payloadFile)
		if err != nil {
			return fmt.Errorf("failed to read payload: %w", err)
		}
		if !json.Valid(payload) {
			return fmt.Errorf("%s is not valid JSON", payloadFile)
		}

		body := map[string]json.RawMessage{
			"event":  json.RawMessage(strconv.Quote(category)),
			category: payload,
		}
		if cmd.Flags().Changed("new-work") {
			body["new_work"] = json.RawMessage(strconv.FormatUint(newWork, 10))
		}

		ev, err := bridge.DecodeEvent(body)
		if err != nil {
			return err
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		n, err := client().Publish(ctx, ev)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Published %s event to %d sessions\n", category, n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVarP(&payloadFile, "file", "f", "", "JSON file holding the event payload.")
	publishCmd.Flags().Uint64Var(&newWork, "new-work", 0, "Work after a block event. Required for block.")
	_ = publishCmd.MarkFlagRequired("file")
}
