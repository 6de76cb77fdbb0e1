package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"mirrorfeed/models"
)

// TomlMirror represents one mirror server entry from TOML
type TomlMirror struct {
	BaseURL string `toml:"base_url"`
	Mode    string `toml:"mode"`
}

// TomlFetch holds fetch tuning configuration
type TomlFetch struct {
	TimeoutSeconds    int `toml:"timeout_seconds,omitempty"`
	PageCap           int `toml:"page_cap,omitempty"`
	MaxPostsPerHandle int `toml:"max_posts_per_handle,omitempty"`
	RotationStep      int `toml:"rotation_step,omitempty"`
}

// TomlCache holds cache policy configuration
type TomlCache struct {
	MaxAgeMinutes    int  `toml:"max_age_minutes,omitempty"`
	StorePermanently bool `toml:"store_permanently,omitempty"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Mirrors []TomlMirror `toml:"mirrors"`
	Handles []string     `toml:"handles"`
	Fetch   TomlFetch    `toml:"fetch"`
	Cache   TomlCache    `toml:"cache"`
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config TomlConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if len(config.Mirrors) == 0 {
		return nil, fmt.Errorf("config defines no mirrors")
	}

	return &config, nil
}

// MirrorServers converts the TOML entries to model values, defaulting
// unknown modes to HTML
func (c *TomlConfig) MirrorServers() []models.MirrorServer {
	mirrors := make([]models.MirrorServer, 0, len(c.Mirrors))
	for _, m := range c.Mirrors {
		mode := models.ModeHTML
		if m.Mode == string(models.ModeRSS) {
			mode = models.ModeRSS
		}
		mirrors = append(mirrors, models.MirrorServer{BaseURL: m.BaseURL, Mode: mode})
	}
	return mirrors
}
