package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/liliang-cn/sitebot/internal/app"
	"github.com/liliang-cn/sitebot/internal/config"
)

var (
	configPath string
	verbose    bool
)

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "sitebotctl",
	Short: "Build and query website chatbots from the command line",
	Long: `sitebotctl drives the same crawl, ingestion and chat pipeline as the
SiteBot server, against the configured database and vector index.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(botsCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return app.NewLogger(cfg.Log)
}

// withApp loads configuration, builds the application and closes it after fn
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
