package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"newsreel/internal/domain/entity"
)

// FeedListFile is the on-disk shape of the hand-curated feed list (§3
// "Feed Poll State" distinguishes this static config from the mutable,
// store-held cursor). Mirrors LoadSecurityConfig's plain-YAML-file loading
// idiom rather than the document store, since feed definitions are
// operator-curated, not pipeline-written.
type FeedListFile struct {
	Feeds []entity.FeedConfig `yaml:"feeds"`
}

// LoadFeedList loads the configured feed list from a YAML file.
// The path parameter is expected to come from a trusted source
// (command-line flag or hardcoded default), not user input.
func LoadFeedList(path string) ([]entity.FeedConfig, error) {
	// #nosec G304 -- path is provided by trusted source (CLI flag or config), not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed list file: %w", err)
	}

	var file FeedListFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse feed list file: %w", err)
	}

	if err := validateFeedList(file.Feeds); err != nil {
		return nil, fmt.Errorf("feed list validation failed: %w", err)
	}

	return file.Feeds, nil
}

// validateFeedList enforces the fields the poller treats as load-bearing:
// every feed needs a unique id (the poll-state store's document key) and a
// parseable URL.
func validateFeedList(feeds []entity.FeedConfig) error {
	if len(feeds) == 0 {
		return fmt.Errorf("feed list is empty")
	}
	seen := make(map[string]struct{}, len(feeds))
	for _, f := range feeds {
		if f.ID == "" {
			return fmt.Errorf("feed %q: id is required", f.Name)
		}
		if f.URL == "" {
			return fmt.Errorf("feed %q: url is required", f.ID)
		}
		if _, dup := seen[f.ID]; dup {
			return fmt.Errorf("feed id %q is duplicated", f.ID)
		}
		seen[f.ID] = struct{}{}
		if f.Tier != entity.FeedTierWire && f.Tier != entity.FeedTierNormal {
			return fmt.Errorf("feed %q: tier must be 1 or 2, got %d", f.ID, f.Tier)
		}
	}
	return nil
}
