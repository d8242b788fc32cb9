// Copyright 2024-2026 Aiku AI

package bot

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the bot runtime configuration.
type Config struct {
	// Identifier is the local username of the bot actor.
	Identifier string `yaml:"identifier"`
	// Domain the bot's URIs live under.
	Domain      string `yaml:"domain"`
	DisplayName string `yaml:"display_name"`
	Summary     string `yaml:"summary"`
	// Language is the default BCP-47 tag applied to published messages.
	// Empty publishes without a language hint.
	Language string `yaml:"language"`
	// DefaultVisibility applies when a publish call does not set one.
	DefaultVisibility Visibility `yaml:"default_visibility"`
	// StorePath is the Pebble database location.
	StorePath string `yaml:"store_path"`
	// InboxAddr is the listen address for the inbox/objects HTTP surface.
	InboxAddr string `yaml:"inbox_addr"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// ParseConfig decodes a YAML config and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PostProcess validates required fields and fills defaults.
func (c *Config) PostProcess() error {
	if c.Identifier == "" {
		return fmt.Errorf("config: identifier is required")
	}
	if strings.ContainsAny(c.Identifier, "@/ ") {
		return fmt.Errorf("config: identifier %q must be a bare username", c.Identifier)
	}
	if c.Domain == "" {
		return fmt.Errorf("config: domain is required")
	}
	if c.DefaultVisibility == "" {
		c.DefaultVisibility = VisibilityPublic
	}
	switch c.DefaultVisibility {
	case VisibilityPublic, VisibilityUnlisted, VisibilityFollowers, VisibilityDirect:
	default:
		return fmt.Errorf("config: unknown default_visibility %q", c.DefaultVisibility)
	}
	if c.InboxAddr == "" {
		c.InboxAddr = ":8065"
	}
	return nil
}

// TagBaseURL is where hashtag links on published messages point.
func (c *Config) TagBaseURL() string {
	return "https://" + c.Domain + "/tags/"
}
