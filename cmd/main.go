package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/httprunner/adbpair"
	"github.com/httprunner/adbpair/internal/env"
)

var rootCmd = &cobra.Command{
	Use:   "adbpair",
	Short: "Pair Android devices over Wi-Fi with adb",
	Long: `adbpair drives "adb pair" for Wi-Fi debugging: it checks that the adb mDNS daemon is usable,
shows a QR code payload for the phone to scan, discovers devices offering pairing-code pairing,
and waits until the paired device is online.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := adbpair.LoadSettings(rootConfigPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") || strings.TrimSpace(s.LogLevel) == "" {
			s.LogLevel = rootLogLevel
		}
		level, err := zerolog.ParseLevel(strings.ToLower(s.LogLevel))
		if err != nil {
			log.Warn().Str("level", s.LogLevel).Msg("unknown log level, using info")
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
		if path := env.LoadedPath(); path != "" {
			log.Debug().Str("dotenv", path).Msg("environment loaded")
		}
		settings = s
		return nil
	},
}

var (
	rootConfigPath string
	rootLogLevel   string

	settings adbpair.Settings
)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "YAML settings file; ADBPAIR_* env vars override it")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(
		newCheckCmd(),
		newServicesCmd(),
		newPairCmd(),
		newHistoryCmd(),
	)
	_ = env.Ensure()
}

func newClient() (*adbpair.Client, error) {
	return adbpair.NewClient(adbpair.Options{Settings: settings})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("adbpair command failed")
	}
}
