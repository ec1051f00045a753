package main

import (
	"context"
	"fmt"

	"vetting/internal/db"
	"vetting/internal/seed"
	"vetting/internal/store"

	"github.com/urfave/cli/v2"
)

var seedCommand = &cli.Command{
	Name:  "seed",
	Usage: "Sync providers, requirements and volunteers from the fixtures file",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "Fixtures file, defaults to FIXTURES_FILE",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		path := cfg.FixturesFile
		if c.String("file") != "" {
			path = c.String("file")
		}

		fixtures, err := seed.LoadFixtures(path)
		if err != nil {
			return err
		}

		ctx := context.Background()
		logger := newLogger()

		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		logger.WithField("file", path).Info("seeding from fixtures")

		return seed.Apply(ctx, logger, seed.Repositories{
			Providers:    store.NewProviderRepository(pool),
			Requirements: store.NewRequirementRepository(pool),
			Volunteers:   store.NewVolunteerRepository(pool),
		}, fixtures)
	},
}
