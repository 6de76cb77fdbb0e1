/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"

	"mirrorfeed/db"
)

// clearCmd represents the clear command
func clearCmd() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Clear the post cache",
		Description: `Deletes all non-pinned posts from the cache database.

Pinned posts survive. Asks for confirmation unless --yes is given.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "feed.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"MIRRORFEED_DATABASE"},
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt",
			},
		},
		Action: func(ctx *cli.Context) error {
			if !ctx.Bool("yes") {
				answer, err := prompt.New().Ask("Delete all non-pinned cached posts? Type yes to confirm:").Input("no")
				if err != nil {
					return err
				}
				if answer != "yes" {
					fmt.Println("Aborted")
					return nil
				}
			}

			store, err := db.NewStore(ctx.String("database"))
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			deleted, err := store.DeleteNonPinned(ctx.Context)
			if err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}

			fmt.Printf("Deleted %d posts\n", deleted)
			return nil
		},
	}
}
