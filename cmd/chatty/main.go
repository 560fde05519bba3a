package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/chatty/pkg/conversation"
	"github.com/go-go-golems/chatty/pkg/inference"
	"github.com/go-go-golems/chatty/pkg/inference/engine"
	"github.com/go-go-golems/chatty/pkg/inference/enginetest"
	"github.com/go-go-golems/chatty/pkg/persistence"
	"github.com/go-go-golems/chatty/pkg/settings"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatty",
		Short: "Hold multiple named, persisted conversations with a generative model",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initViper(cmd); err != nil {
				return err
			}
			return initLogging()
		},
	}

	cmd.PersistentFlags().String("config", "", "config file (default <data-dir>/config.yaml)")
	cmd.PersistentFlags().String("data-dir", "", "directory for the conversation store (default ~/.chatty)")
	cmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().String("api-type", "", "generation backend (gemini, openai)")
	cmd.PersistentFlags().String("model", "", "model name")
	cmd.PersistentFlags().Float64("temperature", 0, "sampling temperature")
	cmd.PersistentFlags().Bool("offline", false, "use the canned offline engine instead of a remote backend")

	cmd.AddCommand(
		newChatCommand(),
		newListCommand(),
		newExportCommand(),
		newDeleteCommand(),
		newRenameCommand(),
		newPinCommand(),
	)

	return cmd
}

func initViper(cmd *cobra.Command) error {
	viper.SetEnvPrefix("CHATTY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := viper.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return err
	}

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return err
		}
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(dataDir())
		// a missing config file is fine, flags and env cover everything
		_ = viper.ReadInConfig()
	}

	return nil
}

func initLogging() error {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
	return nil
}

func dataDir() string {
	if dir := viper.GetString("data-dir"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".chatty")
}

// openStore loads the durable snapshot into a store and wires the flush
// hook, so every mutation below is persisted.
func openStore(cmd *cobra.Command) (*conversation.Store, error) {
	store := conversation.NewStore()
	adapter := persistence.NewAdapter(persistence.NewFileBackend(dataDir()))
	if err := adapter.Attach(cmd.Context(), store); err != nil {
		return nil, err
	}
	return store, nil
}

func buildSettings() *settings.StepSettings {
	stepSettings := settings.NewStepSettings()
	stepSettings.UpdateFromViper(viper.GetViper())
	return stepSettings
}

func buildEngine(stepSettings *settings.StepSettings) (engine.Engine, error) {
	if viper.GetBool("offline") {
		return enginetest.NewMockEngine(), nil
	}
	factory := &inference.StandardEngineFactory{Settings: stepSettings}
	return factory.NewEngine()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}
