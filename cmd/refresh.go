/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"mirrorfeed/config"
	"mirrorfeed/db"
)

// refreshCmd represents the refresh command
func refreshCmd() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Fetch configured handles and persist the posts",
		Description: `Fetches posts for every configured handle from the mirror pool and
persists them to the cache database.

Can be run as a cron job to keep the cache warm without running the
server.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config/mirrors.toml",
				Usage:   "Path to mirrors configuration file",
				EnvVars: []string{"MIRRORFEED_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "feed.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"MIRRORFEED_DATABASE"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if len(cfg.Handles) == 0 {
				return fmt.Errorf("no handles configured")
			}

			database := ctx.String("database")
			if err := db.Migrate(database); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			store, err := db.NewStore(database)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			coordinator, _ := buildCoordinator(store, cfg)

			results := coordinator.RefreshAll(ctx.Context, cfg.Handles, cfg.Fetch.MaxPostsPerHandle)

			var failed int
			for handle, result := range results {
				if result.Err != nil {
					log.WithFields(log.Fields{
						"handle": handle,
						"error":  result.Err,
					}).Error("Refresh failed for handle")
					failed++
					continue
				}
				fmt.Printf("Refreshed %s: %d posts\n", handle, len(result.Posts))
			}

			if failed == len(cfg.Handles) {
				return fmt.Errorf("refresh failed for all %d handles", failed)
			}
			return nil
		},
	}
}
