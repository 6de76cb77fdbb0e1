/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"time"

	"mirrorfeed/cache"
	"mirrorfeed/config"
	"mirrorfeed/fetch"
)

// buildFailover assembles the fetcher and mirror failover from config
func buildFailover(cfg *config.TomlConfig) *fetch.Failover {
	fetcher := fetch.NewFetcher(fetch.Config{
		Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		PageCap: cfg.Fetch.PageCap,
	})
	return fetch.NewFailover(fetcher, cfg.MirrorServers(), cfg.Fetch.RotationStep)
}

// buildCoordinator wires the cache coordinator on top of the store and the
// mirror failover. The returned channel carries stored-post events.
func buildCoordinator(store cache.RowStore, cfg *config.TomlConfig) (*cache.Coordinator, <-chan interface{}) {
	events := make(chan interface{}, 1024)

	coordinator := cache.NewCoordinator(store, buildFailover(cfg), cache.Options{
		MaxCacheAge:      time.Duration(cfg.Cache.MaxAgeMinutes) * time.Minute,
		StorePermanently: cfg.Cache.StorePermanently,
		Events:           events,
	})

	return coordinator, events
}
