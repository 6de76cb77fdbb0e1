/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"mirrorfeed/config"
	"mirrorfeed/db"
	"mirrorfeed/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the mirrorfeed HTTP API",
		Description: `Starts the mirrorfeed HTTP server and the background refresh loop.

Serves cached posts for the configured handles over HTTP and refreshes
them from the mirror pool on an interval. Stored posts are pushed to
connected SSE clients as they arrive.`,
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
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   3000,
				Usage:   "Port to listen on",
				EnvVars: []string{"MIRRORFEED_PORT"},
			},
			&cli.IntFlag{
				Name:    "refresh-interval",
				Value:   10,
				Usage:   "Minutes between background refreshes of configured handles, 0 disables",
				EnvVars: []string{"MIRRORFEED_REFRESH_INTERVAL"},
			},
		},
		Action: func(ctx *cli.Context) error {

			fmt.Println("Starting mirrorfeed...")

			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
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

			coordinator, events := buildCoordinator(store, cfg)

			bc := server.NewBroadcaster()
			go bc.Consume(events)

			app := server.Server(&server.ServerConfig{
				Coordinator: coordinator,
				Broadcaster: bc,
			})

			runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Background refresh of configured handles
			if interval := ctx.Int("refresh-interval"); interval > 0 && len(cfg.Handles) > 0 {
				go func() {
					ticker := time.NewTicker(time.Duration(interval) * time.Minute)
					defer ticker.Stop()
					for {
						select {
						case <-runCtx.Done():
							return
						case <-ticker.C:
							results := coordinator.RefreshAll(runCtx, cfg.Handles, cfg.Fetch.MaxPostsPerHandle)
							for handle, result := range results {
								if result.Err != nil {
									log.WithFields(log.Fields{
										"handle": handle,
										"error":  result.Err,
									}).Warn("Background refresh failed for handle")
								}
							}
						}
					}
				}()
			}

			go func() {
				<-runCtx.Done()
				fmt.Println("Gracefully shutting down...")
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.Errorf("Error shutting down server: %v", err)
				}
				bc.Shutdown()
			}()

			fmt.Println("Starting server...")
			if err := app.Listen(fmt.Sprintf(":%d", ctx.Int("port"))); err != nil {
				return err
			}

			fmt.Println("Done!")
			return nil
		},
	}
}
