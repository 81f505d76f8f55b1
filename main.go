package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"promptsmith/config"
	"promptsmith/logging"
)

var (
	v          = viper.New()
	configFile string
	cfg        *config.Config
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "promptsmith",
	Short:         "Design system prompts in four guided steps",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, configFile)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Log.Level, cfg.Log.Development)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default ./promptsmith.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("model", "", "model used when a request names none")
	pf.String("language", "", "output language of generated prompts")
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("generation.default_model", pf.Lookup("model"))
	_ = v.BindPFlag("generation.output_language", pf.Lookup("language"))

	rootCmd.AddCommand(newServeCmd(), newWorkerCmd(), newAutomateCmd(), newAdviseCmd(), newRefineCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
