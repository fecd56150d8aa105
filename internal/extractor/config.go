package extractor

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Config is one immutable extractor configuration, loaded from the
// extractor config file.
type Config struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
	Model  string `yaml:"model,omitempty"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled,omitempty"`

	// RequestSourcesEnabled restricts which trigger sources may run this
	// extractor. Empty = all sources.
	RequestSourcesEnabled []string `yaml:"request_sources_enabled,omitempty"`

	// ManualTrigger marks extractors that only run when the caller
	// explicitly allows manual triggering.
	ManualTrigger bool `yaml:"manual_trigger,omitempty"`
}

// IsEnabled resolves the Enabled default.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// configFile is the on-disk shape of the extractor config file.
type configFile struct {
	Extractors []Config `yaml:"extractors"`
}

// LoadConfigs reads extractor configurations from a YAML file.
func LoadConfigs(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read extractor config: %w", err)
	}
	var f configFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse extractor config: %w", err)
	}
	for i := range f.Extractors {
		if f.Extractors[i].Name == "" {
			return nil, fmt.Errorf("extractor config %d: missing name", i)
		}
	}
	return f.Extractors, nil
}

// FilterConfigs is the pure trigger filter applied before each
// generation cycle:
//   - disabled configs are skipped;
//   - request_sources_enabled skips configs whose list does not contain
//     the caller's source (empty list = all sources);
//   - manual_trigger configs are skipped unless allowManual is set;
//   - names, when non-empty, is an allow-list of extractor names.
func FilterConfigs(configs []Config, source string, allowManual bool, names []string) []Config {
	out := make([]Config, 0, len(configs))
	for _, c := range configs {
		if !c.IsEnabled() {
			continue
		}
		if len(c.RequestSourcesEnabled) > 0 && !slices.Contains(c.RequestSourcesEnabled, source) {
			continue
		}
		if c.ManualTrigger && !allowManual {
			continue
		}
		if len(names) > 0 && !slices.Contains(names, c.Name) {
			continue
		}
		out = append(out, c)
	}
	return out
}
