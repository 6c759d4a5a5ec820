package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/axelsure/claimflow/pkg/config"
	"github.com/axelsure/claimflow/pkg/logger"
	"github.com/axelsure/claimflow/pkg/presenter"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "claimflow",
	Short: "Email-driven automotive insurance claim processing",
	Long: `Claimflow polls a mailbox for claim correspondence, threads each message to
its claim, and drives the claim through clarification, triage, specialist
agents, and rule-based review until a decision is reached.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configFile); err != nil {
			return err
		}
		if err := logger.SetLogLevel(viper.GetString("log_level")); err != nil {
			return err
		}
		logger.SetLogFormat(viper.GetString("log_format"))
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yaml or $HOME/.claimflow/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "log format (fmt or json)")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(claimsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		presenter.Error(err, "command failed")
		os.Exit(1)
	}
}
