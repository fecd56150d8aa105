package extractor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestLoadConfigs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extractors.yaml")
	data := `extractors:
  - name: memory
    prompt: "Extract durable facts about the user."
  - name: preferences
    prompt: "Extract stated preferences."
    model: llama3.1
    enabled: false
    request_sources_enabled: [scheduler]
  - name: summary
    prompt: "Summarize the conversation."
    manual_trigger: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	configs, err := LoadConfigs(path)
	require.NoError(t, err)
	require.Len(t, configs, 3)

	assert.Equal(t, "memory", configs[0].Name)
	assert.True(t, configs[0].IsEnabled(), "enabled defaults to true")

	assert.False(t, configs[1].IsEnabled())
	assert.Equal(t, []string{"scheduler"}, configs[1].RequestSourcesEnabled)
	assert.Equal(t, "llama3.1", configs[1].Model)

	assert.True(t, configs[2].ManualTrigger)
}

func TestLoadConfigs_Errors(t *testing.T) {
	_, err := LoadConfigs(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "unnamed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("extractors:\n  - prompt: p\n"), 0o644))
	_, err = LoadConfigs(path)
	assert.ErrorContains(t, err, "missing name")
}

func TestFilterConfigs(t *testing.T) {
	configs := []Config{
		{Name: "always", Prompt: "p"},
		{Name: "disabled", Prompt: "p", Enabled: boolPtr(false)},
		{Name: "scheduler-only", Prompt: "p", RequestSourcesEnabled: []string{"scheduler"}},
		{Name: "manual-only", Prompt: "p", ManualTrigger: true},
	}

	names := func(cs []Config) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.Name)
		}
		return out
	}

	tests := []struct {
		name        string
		source      string
		allowManual bool
		only        []string
		want        []string
	}{
		{
			name:   "api source excludes scheduler-only and manual",
			source: "api",
			want:   []string{"always"},
		},
		{
			name:   "scheduler source includes source-restricted",
			source: "scheduler",
			want:   []string{"always", "scheduler-only"},
		},
		{
			name:        "manual trigger allowed",
			source:      "manual",
			allowManual: true,
			want:        []string{"always", "manual-only"},
		},
		{
			name:        "name allow-list",
			source:      "scheduler",
			allowManual: true,
			only:        []string{"scheduler-only"},
			want:        []string{"scheduler-only"},
		},
		{
			name:        "disabled never runs",
			source:      "scheduler",
			allowManual: true,
			only:        []string{"disabled"},
			want:        []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterConfigs(configs, tt.source, tt.allowManual, tt.only)
			assert.Equal(t, tt.want, names(got))
		})
	}
}
