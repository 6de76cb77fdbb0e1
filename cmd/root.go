package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "mirrorfeed",
		Usage: "A failover feed fetcher for public mirror servers",
		Description: `Retrieves social media posts for configured user handles from a set
		of unreliable, interchangeable public mirror servers, reconstructs
		thread structure the sources do not provide, and serves results from
		a staleness-aware SQLite cache.

		Flags can generally be set via environment variables, e.g.:

		--database => MIRRORFEED_DATABASE=feed.db
		--config => MIRRORFEED_CONFIG=config/mirrors.toml
		`,
		Commands: []*cli.Command{
			serveCmd(),
			fetchCmd(),
			refreshCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
			clearCmd(),
			pinCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
