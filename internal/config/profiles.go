package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ryanuber/go-glob"
	"gopkg.in/yaml.v3"
)

// ProfileConfig describes a material profile: print-substrate specific
// generation parameters selected by batch code. A batch printed on foil
// supports more ink channels than one printed on cardboard, so profiles
// override the global generation defaults per batch family.
type ProfileConfig struct {
	ID         string            `yaml:"id"`
	Batches    []string          `yaml:"batches"` // Glob patterns for batch codes
	Generation *GenerationConfig `yaml:"generation,omitempty"`
	RateLimit  *RateLimitConfig  `yaml:"rate_limit,omitempty"`
}

// ProfileManager manages loading and matching material profiles.
type ProfileManager struct {
	profiles []*ProfileConfig
	mu       sync.RWMutex
}

// NewProfileManager creates a new profile manager.
func NewProfileManager() *ProfileManager {
	return &ProfileManager{
		profiles: make([]*ProfileConfig, 0),
	}
}

// LoadProfiles loads profiles from the specified file patterns.
func (pm *ProfileManager) LoadProfiles(patterns []string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.profiles = make([]*ProfileConfig, 0)

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
		}

		for _, match := range matches {
			data, err := os.ReadFile(match)
			if err != nil {
				return fmt.Errorf("failed to read profile file %s: %w", match, err)
			}

			var profile ProfileConfig
			if err := yaml.Unmarshal(data, &profile); err != nil {
				return fmt.Errorf("failed to parse profile file %s: %w", match, err)
			}

			if profile.ID == "" {
				return fmt.Errorf("profile in file %s must have an ID", match)
			}
			if len(profile.Batches) == 0 {
				return fmt.Errorf("profile %s must specify at least one batch pattern", profile.ID)
			}

			pm.profiles = append(pm.profiles, &profile)
		}
	}

	return nil
}

// GetProfileForBatch returns the first matching profile for the given batch
// code, or nil when no profile applies.
func (pm *ProfileManager) GetProfileForBatch(batchCode string) *ProfileConfig {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, profile := range pm.profiles {
		for _, pattern := range profile.Batches {
			if glob.Glob(pattern, batchCode) {
				return profile
			}
		}
	}
	return nil
}

// ApplyToConfig applies profile overrides to a copy of the base
// configuration. Zero-valued override fields leave the base value in place.
func (p *ProfileConfig) ApplyToConfig(base *Config) *Config {
	newConfig := *base

	if p.Generation != nil {
		gen := base.Generation
		if p.Generation.DefaultAlgorithm != "" {
			gen.DefaultAlgorithm = p.Generation.DefaultAlgorithm
		}
		if p.Generation.DefaultGridSize != 0 {
			gen.DefaultGridSize = p.Generation.DefaultGridSize
		}
		if p.Generation.DefaultNumInks != 0 {
			gen.DefaultNumInks = p.Generation.DefaultNumInks
		}
		newConfig.Generation = gen
	}

	if p.RateLimit != nil {
		newConfig.RateLimit = *p.RateLimit
	}

	return &newConfig
}
