package main

import (
	"context"
	"fmt"

	"vetting/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/kelseyhightower/envconfig"
)

// loadConfig reads the environment. requireDatabase is false only for
// in-memory runs.
func loadConfig(requireDatabase bool) (*types.Config, error) {
	c := new(types.Config)
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	if requireDatabase && c.DatabaseURL == "" {
		return nil, fmt.Errorf("set DATABASE_URL")
	}

	switch c.FallbackMode {
	case types.FallbackModeSimulate, types.FallbackModeReview:
	default:
		return nil, fmt.Errorf("FALLBACK_MODE must be %q or %q, got %q",
			types.FallbackModeSimulate, types.FallbackModeReview, c.FallbackMode)
	}

	if c.RenewalWorkers == 0 {
		c.RenewalWorkers = 1
	}

	return c, nil
}

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}

	return cfg, nil
}
