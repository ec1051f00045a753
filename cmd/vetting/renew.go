package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

var renewCommand = &cli.Command{
	Name:  "renew",
	Usage: "Run one renewal scheduler pass and print its report",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "in-memory",
			Usage: "Use an in-memory store loaded from FIXTURES_FILE",
		},
	},
	Action: func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		inMemory := c.Bool("in-memory")
		cfg, err := loadConfig(!inMemory)
		if err != nil {
			return err
		}

		logger := newLogger()
		a, err := newApp(ctx, cfg, logger, inMemory)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.scheduler.Run(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}
