package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanEnzee/skillance-relay/pkg/api"
)

func serveCmd(ctx *Context) *cobra.Command {
	const (
		flagAddr            = "addr"
		flagShutdownTimeout = "shutdown-timeout"
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the relay HTTP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := ctx.Config.ServerAddr
			if cmd.Flags().Changed(flagAddr) {
				var err error
				if addr, err = cmd.Flags().GetString(flagAddr); err != nil {
					return err
				}
			}
			shutdownTimeout, err := cmd.Flags().GetDuration(flagShutdownTimeout)
			if err != nil {
				return err
			}

			a, err := newApp(sigCtx, ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var (
				relayer api.Relayer
				status  api.TxStatusReader
			)
			if a.relayer != nil {
				relayer = a.relayer
				status = a.relayer.Reconciler()
			}
			handler := api.NewHandler(relayer, status, a.notReady, ctx.Config.MaxBatchSize, ctx.Logger.WithModule("api"))
			router := api.NewRouter(handler, api.RouterConfig{
				Production: ctx.Config.IsProduction(),
				AuthSecret: string(ctx.Config.AuthSecret),
				Gatherer:   a.registry,
			}, ctx.Logger.WithModule("http"))

			return api.Serve(sigCtx, addr, router, shutdownTimeout, ctx.Logger)
		},
	}

	cmd.Flags().String(flagAddr, "", "listen address overriding SERVER_ADDR")
	cmd.Flags().Duration(flagShutdownTimeout, 5*time.Minute, "time given to in-flight batches on shutdown")

	return cmd
}
