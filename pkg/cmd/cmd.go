package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bryanEnzee/skillance-relay/pkg/log"
	"github.com/bryanEnzee/skillance-relay/pkg/relay"
)

const (
	flagEnvFile   = "env-file"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
)

// Context is shared by every subcommand once the configuration is loaded.
type Context struct {
	Config relay.Config
	Logger *log.RelayLogger
}

func NewRootCmd() *cobra.Command {
	ctx := &Context{}

	cmd := &cobra.Command{
		Use:           "chatrelay",
		Short:         "Relay buffered chat messages to the on-chain chat store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFiles, err := cmd.Flags().GetStringSlice(flagEnvFile)
			if err != nil {
				return err
			}
			config, err := relay.LoadConfig(envFiles...)
			if err != nil {
				return err
			}
			if err := overrideLogConfig(cmd.Flags(), &config); err != nil {
				return err
			}
			if err := config.Validate(); err != nil {
				return err
			}
			if err := log.InitLogger(config.LogLevel, config.LogFormat, os.Stderr); err != nil {
				return err
			}

			ctx.Config = config
			ctx.Logger = log.GetLogger().WithModule("chatrelay")
			return nil
		},
	}

	cmd.PersistentFlags().StringSlice(flagEnvFile, nil, "dotenv files to load before reading the environment (default .env)")
	cmd.PersistentFlags().String(flagLogLevel, "", "log level overriding LOG_LEVEL")
	cmd.PersistentFlags().String(flagLogFormat, "", "log format overriding LOG_FORMAT (terminal, json, logfmt)")

	cmd.AddCommand(
		serveCmd(ctx),
		relayCmd(ctx),
		txCmd(ctx),
		pendingCmd(ctx),
	)

	return cmd
}

func overrideLogConfig(flags *pflag.FlagSet, config *relay.Config) error {
	if flags.Changed(flagLogLevel) {
		level, err := flags.GetString(flagLogLevel)
		if err != nil {
			return err
		}
		config.LogLevel = level
	}
	if flags.Changed(flagLogFormat) {
		format, err := flags.GetString(flagLogFormat)
		if err != nil {
			return err
		}
		config.LogFormat = format
	}
	return nil
}
