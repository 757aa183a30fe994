// File: cmd/signalsbot.go
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Bardaqus/signalsbot-sub001/pkg/app"
	"github.com/Bardaqus/signalsbot-sub001/utilities"
)

var (
	cfgFile string
	cfg     utilities.AppConfig
	logger  *utilities.Logger
)

// rootCmd represents the base command for the SignalsBot CLI.
var rootCmd = &cobra.Command{
	Use:   "signalsbot",
	Short: "SignalsBot forex and crypto signal publisher",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Run(cmd.Context(), &cfg, logger)
	},
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Probe every configured component and report its status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Diagnose(cmd.Context(), &cfg, logger)
	},
}

var sendNowCmd = &cobra.Command{
	Use:   "send-now",
	Short: "Generate and deliver one signal per channel immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.SendNow(cmd.Context(), &cfg, logger)
	},
}

// loadConfig reads the JSON config file, layers env overrides on the secret
// keys and builds the logger.
func loadConfig() error {
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("json")
	viper.AutomaticEnv()

	// Secrets come from the environment (.env) and override the file.
	envKeys := map[string]string{
		"telegram.bot_token":    "TELEGRAM_BOT_TOKEN",
		"twelve_data.api_key":   "TWELVE_DATA_API_KEY",
		"ctrader.client_id":     "CTRADER_CLIENT_ID",
		"ctrader.client_secret": "CTRADER_CLIENT_SECRET",
		"ctrader.access_token":  "CTRADER_ACCESS_TOKEN",
		"ctrader.refresh_token": "CTRADER_REFRESH_TOKEN",
		"ctrader.account_id":    "CTRADER_ACCOUNT_ID",
	}
	for key, env := range envKeys {
		if err := viper.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	level := utilities.Info
	if cfg.Logging.Level != "" {
		parsed, err := utilities.ParseLogLevel(cfg.Logging.Level)
		if err != nil {
			utilities.LogWarnF("Invalid log level %q, defaulting to info.", cfg.Logging.Level)
		} else {
			level = parsed
		}
	}
	logger = utilities.NewLogger(level)
	return nil
}

// Execute runs the root command under the signal-aware context from main.
func Execute(ctx context.Context) {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.json", "config file (default is config/config.json)")
	rootCmd.AddCommand(diagnoseCmd, sendNowCmd)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
