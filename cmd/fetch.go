/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"mirrorfeed/config"
	"mirrorfeed/models"
)

// fetchCmd represents the fetch command
func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Fetch posts for handles and print them to the command line",
		Description: `Fetches posts for the given handles straight from the mirror pool,
bypassing the cache, and prints them to the command line.

Can be used to collect posts for a handle by passing the output to a
file or another application.

Returns each post as a JSON object on a single line. Use a tool like jq
to process the output.

Prints all other log messages to stderr.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config/mirrors.toml",
				Usage:   "Path to mirrors configuration file",
				EnvVars: []string{"MIRRORFEED_CONFIG"},
			},
			&cli.StringSliceFlag{
				Name:    "handle",
				Usage:   "Handle to fetch posts for, repeatable; defaults to configured handles",
				EnvVars: []string{"MIRRORFEED_HANDLE"},
			},
			&cli.IntFlag{
				Name:    "max-posts",
				Value:   100,
				Usage:   "Maximum number of posts to fetch per handle",
				EnvVars: []string{"MIRRORFEED_MAX_POSTS"},
			},
		},
		Action: func(ctx *cli.Context) error {
			// Keep stdout clean for the JSON lines
			log.SetOutput(os.Stderr)

			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			handles := ctx.StringSlice("handle")
			if len(handles) == 0 {
				handles = cfg.Handles
			}
			if len(handles) == 0 {
				return fmt.Errorf("no handles given and none configured")
			}

			failover := buildFailover(cfg)
			results := failover.FetchFromAnyMirrorForMany(ctx.Context, handles, time.Time{}, ctx.Int("max-posts"))

			var failed int
			for handle, result := range results {
				if result.Err != nil {
					log.WithFields(log.Fields{
						"handle": handle,
						"error":  result.Err,
					}).Error("Fetch failed for handle")
					failed++
					continue
				}
				for _, post := range result.Posts {
					printStdout(&post)
				}
			}

			if failed == len(handles) {
				return fmt.Errorf("fetch failed for all %d handles", failed)
			}
			return nil
		},
	}
}

func printStdout(post *models.Post) {
	// Print as single JSON string on a single line
	postJson, err := json.Marshal(post)
	if err == nil {
		fmt.Println(string(postJson))
	}
}
