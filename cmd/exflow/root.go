package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/anggasct/exflow/pkg/config"
	"github.com/anggasct/exflow/pkg/logger"
)

var (
	cfgFile   string
	AppConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:                   "exflow [command]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "exflow runs the vulnerability exception approval workflow.",
		Long: `exflow tracks security exception requests through ISO, department head and CISO review,
	and voids approved exceptions when a rescan shows the covered risk escalated.
	`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults)")
	rootCmd.AddCommand(
		newServeCmd(),
		newGraphCmd(),
		newRevalidateCmd(),
		newVersionCmd(),
	)
}

func Execute() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() error {
	if cfgFile == "" {
		cfgFile = os.Getenv("EXFLOW_CONFIG")
	}

	var err error
	AppConfig, err = config.NewConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

func newLogger(name string) hclog.Logger {
	return logger.NewLogger(AppConfig, name)
}
