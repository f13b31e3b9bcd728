package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docingest/config"
	"docingest/internal/logger"
)

var (
	cfgFile  string
	cfg      *config.Config
	rootDir  string
	logLevel string
	logJSON  bool
	log      logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "docingest",
	Short: "Chunk, embed and store documents for retrieval",
	Long: `docingest turns documents into overlapping, boundary-aware chunks,
embeds each document's chunks in one batch and stores them atomically.

Example usage:
  docingest ingest ./manuals --user alice   # Ingest a directory
  docingest chunk report.pdf                # Preview chunks without storing
  docingest docs                            # List stored documents
  docingest serve                           # Accept uploads over HTTP`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Logging.Level
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		log = logger.NewLogger(&logger.Config{
			Level:      logger.ParseLevel(level),
			Output:     os.Stderr,
			JSON:       logJSON || cfg.Logging.JSON,
			TimeFormat: "15:04:05",
		})
		cmd.SetContext(logger.ContextWithLogger(cmd.Context(), log))

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./docingest.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "workspace directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
