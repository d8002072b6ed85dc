package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ragcore/config"
	"ragcore/internal/app"
	"ragcore/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ragcore",
	Short: "Ingest documents into passages and retrieve the most similar ones",
	Long: `ragcore splits documents into overlapping passages, embeds them and stores
them locally. Queries are embedded with the same model and answered with the
passages of highest cosine similarity.

Example usage:
  ragcore ingest docs/                       # Ingest a directory
  ragcore ingest notes.md --id notes         # Ingest one file under an explicit id
  ragcore query -q "how are refunds handled" # Retrieve the best passages
  ragcore status                             # Show what is stored`,
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
		if err := cfg.ApplyEnv(); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = logging.New(cmd.ErrOrStderr(), logging.Options{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Verbose: verbose,
		})
		return err
	},
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ragcore.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "project directory holding .ragcore (default is current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

func newApp(opts ...app.Option) (*app.App, error) {
	opts = append([]app.Option{app.WithLogger(logger)}, opts...)
	return app.New(GetConfig(), GetRootDir(), opts...)
}
