package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/fxbill/pkg/config"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "fxbill",
		Short:         "FX-adjusted recurring billing service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// --config takes precedence over BILLING_CONFIG_FILE
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				return os.Setenv(config.FileEnv, path)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML config file applied before environment variables")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(overviewCmd())
	rootCmd.AddCommand(scheduleCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
