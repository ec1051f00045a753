package main

import (
	"context"
	"fmt"

	"github.com/k0kubun/pp/v3"
	"github.com/urfave/cli/v2"
)

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "Print a background check and its audit trail",
	ArgsUsage: "<check-id>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "refresh",
			Usage: "Refresh the status from the provider first",
		},
	},
	Action: func(c *cli.Context) error {
		checkID := c.Args().First()
		if checkID == "" {
			return fmt.Errorf("check id is required")
		}

		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := newApp(ctx, cfg, newLogger(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if c.Bool("refresh") {
			if _, err := a.checks.RefreshStatus(ctx, checkID); err != nil {
				return err
			}
		}

		check, err := a.checks.Check(ctx, checkID)
		if err != nil {
			return err
		}

		pp.Println(check)
		return nil
	},
}
