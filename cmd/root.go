// Package cmd holds the caseresolver command line: an HTTP service and a
// one-shot resolve command sharing the same application container.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/onbid-case-resolver/internal/app"
	"github.com/JakeFAU/onbid-case-resolver/internal/config"
	"github.com/JakeFAU/onbid-case-resolver/internal/logging"
)

// version is overridden at build time with -ldflags.
var version = "dev"

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. Tests replace it to avoid touching disk
// or network backends.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "caseresolver",
		Short: "Resolves onbid auction case numbers into structured listing data.",
		Long: `caseresolver looks up public auction listings by case number or listing URL,
extracts the listing fields, records attachments and caches the outcome.
In strict mode every field comes from the live upstream page or is reported as missing.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance := appFrom(cmd); appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newServeCmd(), newResolveCmd())
	return cmd
}

func appFrom(cmd *cobra.Command) *app.App {
	appInstance, _ := cmd.Context().Value(appKey).(*app.App)
	return appInstance
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "caseresolver: %v\n", err)
		os.Exit(1)
	}
}
