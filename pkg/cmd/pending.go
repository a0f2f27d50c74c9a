package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanEnzee/skillance-relay/pkg/relay/pending"
)

func pendingCmd(ctx *Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Manage pending transactions of the relay account",
	}

	cmd.AddCommand(
		showPendingTxCmd(ctx),
		replacePendingTxCmd(ctx),
	)

	return cmd
}

func showPendingTxCmd(ctx *Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show",
		Aliases: []string{"list"},
		Short:   "Show the minimum nonce pending transaction sent by the relay",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			tx, err := newPendingLogic(ctx, a).ShowPendingTx(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tx)
		},
	}
	return cmd
}

func replacePendingTxCmd(ctx *Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Replace the minimum nonce pending transaction sent by the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			logic := newPendingLogic(ctx, a)
			tx, err := logic.ShowPendingTx(cmd.Context())
			if err != nil {
				return err
			}
			ctx.Logger.Info("pending transaction found", "tx_hash", tx.Hash, "nonce", uint64(tx.Nonce))

			newTx, err := logic.ReplacePendingTx(cmd.Context(), tx.Hash)
			if err != nil {
				return err
			}
			if newTx != nil {
				fmt.Fprintln(cmd.OutOrStdout(), newTx.Hash().Hex())
			}
			return nil
		},
	}
	return cmd
}

func newPendingLogic(ctx *Context, a *app) *pending.Logic {
	logic := pending.NewLogic(a.client, a.account, pending.ReplaceConfig{
		PriceBump:       ctx.Config.ReplacePriceBump,
		CheckInterval:   ctx.Config.ReplaceCheckInterval,
		PendingDuration: ctx.Config.ReplacePendingDuration,
		MaxGasPrice:     ctx.Config.GetMaxGasPrice(),
	}, ctx.Logger)
	if a.ledger != nil {
		logic.SetRecorder(a.ledger)
	}
	return logic
}
