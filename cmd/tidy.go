/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"mirrorfeed/db"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing posts that are old.

		Removes non-pinned posts older than the given number of days from the
		database. This is to keep the database size down and to keep the feed
		fresh. Pinned posts are never removed.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "feed.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"MIRRORFEED_DATABASE"},
			},
			&cli.IntFlag{
				Name:    "max-age",
				Value:   90,
				Usage:   "Remove posts older than this many days",
				EnvVars: []string{"MIRRORFEED_MAX_AGE"},
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			fmt.Println("Database configured: ", database)
			maxAge := time.Duration(ctx.Int("max-age")) * 24 * time.Hour
			return db.Tidy(database, maxAge)
		},
	}
}
