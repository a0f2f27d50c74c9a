package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/bryanEnzee/skillance-relay/pkg/api"
	"github.com/bryanEnzee/skillance-relay/pkg/contract/chatroom"
	"github.com/bryanEnzee/skillance-relay/pkg/journal"
	"github.com/bryanEnzee/skillance-relay/pkg/relay"
)

func relayCmd(ctx *Context) *cobra.Command {
	const flagFile = "file"

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay one batch of messages read from a JSON file",
		Long: `Relay one batch of messages. The file has the same shape as the HTTP request body:
{"messages":[{"roomId":1,"content":"hello","fromPrivilegedSender":false,"clientTimestamp":"..."}]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString(flagFile)
			if err != nil {
				return err
			}
			data, err := readInput(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}
			msgs, err := api.DecodeMessages(data, ctx.Config.MaxBatchSize)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.relayer.Relay(cmd.Context(), msgs)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			for _, i := range result.PendingIndices() {
				if tag, txHash := relay.ParseEntry(result.Txs[i]); tag == "TIMEOUT" {
					ctx.Logger.Warn("confirmation timed out, check later with `chatrelay tx status`", "index", i, "tx_hash", txHash)
				}
			}
			if !result.AnySucceeded() {
				return errors.New("no message was relayed")
			}
			return nil
		},
	}

	cmd.Flags().StringP(flagFile, "f", "-", "JSON file with the messages, - for stdin")

	return cmd
}

func txCmd(ctx *Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Inspect relay transactions",
	}

	cmd.AddCommand(
		txStatusCmd(ctx),
	)

	return cmd
}

func txStatusCmd(ctx *Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [tx-hash]",
		Short: "Show whether a relayed transaction is confirmed, failed, pending or unknown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args[0]) != 66 && len(args[0]) != 64 {
				return fmt.Errorf("invalid tx hash: %s", args[0])
			}
			txHash := common.HexToHash(args[0])

			a, err := newApp(cmd.Context(), ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var reconciler *relay.Reconciler
			if a.relayer != nil {
				reconciler = a.relayer.Reconciler()
			} else {
				classifier, err := relay.NewRevertClassifier(chatroom.MustNewCodec().Errors())
				if err != nil {
					return err
				}
				reconciler = relay.NewReconciler(a.client, classifier, journal.Nop{})
			}

			report, err := reconciler.Status(cmd.Context(), txHash)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func printJSON(w io.Writer, v interface{}) error {
	bz, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(bz))
	return err
}
