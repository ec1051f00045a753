package main

import (
	"fmt"

	"vetting/internal/utils"

	"github.com/urfave/cli/v2"
)

var nanoidCommand = &cli.Command{
	Name:  "nanoid",
	Usage: "Generate ids for use in fixture files",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"c"},
			Usage:   "Number of IDs to generate",
			Value:   1,
		},
		&cli.StringFlag{
			Name:    "prefix",
			Aliases: []string{"p"},
			Usage:   "Type prefix, e.g. req",
		},
	},
	Action: func(c *cli.Context) error {
		for range c.Int("count") {
			if prefix := c.String("prefix"); prefix != "" {
				fmt.Println(utils.PrefixedID(prefix))
				continue
			}
			fmt.Println(utils.NanoID())
		}
		return nil
	},
}
