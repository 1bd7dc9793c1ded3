package config

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// ManifestFile is the optional workspace manifest at the workspace root.
const ManifestFile = "pf.toml"

// Manifest represents the root structure of pf.toml
type Manifest struct {
	Workspace ManifestWorkspace `toml:"workspace"`
	Impact    ManifestImpact    `toml:"impact"`
}

// ManifestWorkspace lists model roots relative to the manifest
type ManifestWorkspace struct {
	Roots   []string `toml:"roots,omitempty"`
	Include []string `toml:"include,omitempty"`
	Exclude []string `toml:"exclude,omitempty"`
}

// ManifestImpact overrides impact settings for the workspace
type ManifestImpact struct {
	// DefaultMaxHops is nil when the manifest does not set it
	DefaultMaxHops *int   `toml:"default_max_hops,omitempty"`
	Policy         string `toml:"policy,omitempty"`
}

// ParseManifest parses a pf.toml file from the given path
func ParseManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ManifestFile, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestFile, err)
	}
	return &m, nil
}

// LoadManifest loads <root>/pf.toml if it exists. A missing manifest is not an error.
func LoadManifest(root string) (*Manifest, error) {
	path := filepath.Join(root, ManifestFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return ParseManifest(path)
}

// ApplyManifest merges m over c. Relative roots are resolved against root.
func (c *Config) ApplyManifest(root string, m *Manifest) {
	if m == nil {
		return
	}
	for _, r := range m.Workspace.Roots {
		if !filepath.IsAbs(r) {
			r = filepath.Join(root, r)
		}
		c.Workspace.Roots = append(c.Workspace.Roots, filepath.Clean(r))
	}
	if len(m.Workspace.Include) > 0 {
		c.Workspace.Include = m.Workspace.Include
	}
	if len(m.Workspace.Exclude) > 0 {
		c.Workspace.Exclude = m.Workspace.Exclude
	}
	if m.Impact.DefaultMaxHops != nil {
		c.Impact.DefaultMaxHops = *m.Impact.DefaultMaxHops
	}
	if m.Impact.Policy != "" {
		c.Impact.Policy = m.Impact.Policy
	}
}

// Overrides carries settings sent by the editor in initializationOptions.
// They take precedence over every file source.
type Overrides struct {
	Impact struct {
		DefaultMaxHops *int   `json:"defaultMaxHops,omitempty"`
		Policy         string `json:"policy,omitempty"`
	} `json:"impact"`
	Logging struct {
		ClientLevel string `json:"clientLevel,omitempty"`
	} `json:"logging"`
}

// ApplyOverrides merges o over c.
func (c *Config) ApplyOverrides(o *Overrides) {
	if o == nil {
		return
	}
	if o.Impact.DefaultMaxHops != nil {
		c.Impact.DefaultMaxHops = *o.Impact.DefaultMaxHops
	}
	if o.Impact.Policy != "" {
		c.Impact.Policy = o.Impact.Policy
	}
	if o.Logging.ClientLevel != "" {
		c.Logging.ClientLevel = o.Logging.ClientLevel
	}
}

// Save writes the manifest to <root>/pf.toml.
func (m *Manifest) Save(root string) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", ManifestFile, err)
	}
	return os.WriteFile(filepath.Join(root, ManifestFile), data, 0644)
}

// Resolve loads the full configuration for a workspace root: defaults,
// environment, config file (or explicitPath when set), then pf.toml.
func Resolve(root, explicitPath string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if explicitPath != "" {
		cfg, err = LoadConfigFile(explicitPath)
	} else {
		cfg, err = LoadConfig(root)
	}
	if err != nil {
		return nil, err
	}
	m, err := LoadManifest(root)
	if err != nil {
		return nil, err
	}
	cfg.ApplyManifest(root, m)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
