package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/bricklore/brickengine/internal/config"
	"github.com/bricklore/brickengine/internal/engine"
	"github.com/bricklore/brickengine/internal/observability"
)

// bootstrap loads configuration and assembles a ready engine. The CLI logs
// to stderr in console format so command output stays parseable.
func bootstrap(ctx context.Context) (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: "brickengine",
	})

	eng, err := engine.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}
