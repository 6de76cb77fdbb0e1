/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"mirrorfeed/db"
)

// pinCmd represents the pin command
func pinCmd() *cli.Command {
	return &cli.Command{
		Name:      "pin",
		Usage:     "Pin cached posts so cache sweeps keep them",
		ArgsUsage: "<post-id> [<post-id>...]",
		Description: `Marks the given post ids as pinned in the cache database.

Pinned posts are skipped by the clear and tidy commands.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "feed.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"MIRRORFEED_DATABASE"},
			},
		},
		Action: func(ctx *cli.Context) error {
			ids := ctx.Args().Slice()
			if len(ids) == 0 {
				return fmt.Errorf("at least one post id is required")
			}

			store, err := db.NewStore(ctx.String("database"))
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			if err := store.MarkPinned(ctx.Context, ids); err != nil {
				return fmt.Errorf("failed to pin posts: %w", err)
			}

			fmt.Printf("Pinned %d posts\n", len(ids))
			return nil
		},
	}
}
