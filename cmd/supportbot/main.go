package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/supportbot/internal/config"
	"github.com/zhouzirui/supportbot/internal/logging"
)

var (
	cfg       *config.Config
	logLevel  string
	widgetCfg string
)

var rootCmd = &cobra.Command{
	Use:   "supportbot",
	Short: "Embeddable customer-support chat widget backend",
	Long: `supportbot hosts chat widgets that answer from a keyword knowledge base,
an optional remote reply endpoint, or an Ark chat model.

Configuration comes from the environment (and a .env file) plus an optional
YAML file of widget option overrides.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envErr := godotenv.Load()

		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		if widgetCfg != "" {
			loaded.WidgetConfigPath = widgetCfg
		}
		logging.Setup(loaded.LogLevel)

		if envErr != nil {
			log.Debug().Err(envErr).Msg("no .env file loaded, using process environment only")
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&widgetCfg, "widget-config", "", "YAML file with widget option overrides; overrides WIDGET_CONFIG")

	rootCmd.AddCommand(serveCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
