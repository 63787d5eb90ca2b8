package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mindsync-backend/internal/config"
	"mindsync-backend/internal/services"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mindsync",
		Short:        "MindSync chat relay between the web app and Gemini",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(newServeCmd(), newAskCmd())
	return root
}

// newGenerator builds the provider backend selected by GEMINI_BACKEND.
// The returned close func is always non-nil.
func newGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (services.Generator, func(), error) {
	switch cfg.GeminiBackend {
	case config.BackendSDK:
		gen, err := services.NewSDKGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			return nil, func() {}, err
		}
		return gen, func() { gen.Close() }, nil
	case config.BackendREST:
		return services.NewGeminiClient(cfg.GenerateURL(), cfg.GeminiAPIKey, nil, logger), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown Gemini backend %q", cfg.GeminiBackend)
	}
}
