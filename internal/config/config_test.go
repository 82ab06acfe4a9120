package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDataDirConfiguration(t *testing.T) {
	tests := []struct {
		name        string
		config      string
		envVars     map[string]string
		wantDataDir func(configDir string) string
		description string
	}{
		{
			name: "default_data_next_to_config",
			config: `
host = "localhost"
port = 7476
sessionSecret = "test-secret"
logLevel = "INFO"
`,
			wantDataDir: func(configDir string) string { return configDir },
			description: "JSON stores should live next to the config file when dataDir is not set",
		},
		{
			name: "explicit_absolute_data_dir",
			config: `
host = "localhost"
port = 7476
sessionSecret = "test-secret"
logLevel = "INFO"
dataDir = "/var/lib/mulearr"
`,
			wantDataDir: func(string) string { return "/var/lib/mulearr" },
			description: "An absolute dataDir should be used verbatim",
		},
		{
			name: "relative_data_dir_resolves_against_config",
			config: `
host = "localhost"
port = 7476
sessionSecret = "test-secret"
dataDir = "data"
`,
			wantDataDir: func(configDir string) string { return filepath.Join(configDir, "data") },
			description: "A relative dataDir should resolve against the config directory",
		},
		{
			name: "env_var_sets_data_dir",
			config: `
host = "localhost"
port = 7476
sessionSecret = "test-secret"
`,
			envVars: map[string]string{
				"MULEARR__DATA_DIR": "/srv/mulearr-data",
			},
			wantDataDir: func(string) string { return "/srv/mulearr-data" },
			description: "MULEARR__DATA_DIR should be honored when the file has no dataDir",
		},
		{
			name: "env_var_overrides_config",
			config: `
host = "localhost"
port = 7476
sessionSecret = "test-secret"
dataDir = "/original/path"
`,
			envVars: map[string]string{
				"MULEARR__DATA_DIR": "/override/path",
			},
			wantDataDir: func(string) string { return "/override/path" },
			description: "Environment variable should override the config file setting",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			tmpDir := t.TempDir()
			configPath := writeConfig(t, tmpDir, tt.config)

			cfg, err := New(configPath)
			require.NoError(t, err, tt.description)
			require.NotNil(t, cfg)

			assert.Equal(t, tt.wantDataDir(tmpDir), cfg.GetDataDir(), tt.description)
		})
	}
}

func TestFirstRunWritesDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := New(tmpDir)
	require.NoError(t, err)

	// the generated file must parse back and carry a session secret
	raw, err := os.ReadFile(filepath.Join(tmpDir, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "sessionSecret")
	assert.NotEmpty(t, cfg.Config.SessionSecret)

	assert.Equal(t, "localhost", cfg.Config.Host)
	assert.Equal(t, 7476, cfg.Config.Port)
	assert.Equal(t, "INFO", cfg.Config.LogLevel)
	assert.True(t, cfg.Config.Amule.Enabled)
	assert.Equal(t, 4712, cfg.Config.Amule.Port)
}

func TestSessionSecretGeneratedWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir, `
host = "localhost"
port = 7476
`)

	cfg, err := New(configPath)
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Config.SessionSecret)
}

func TestDockerEnvironmentCompatibility(t *testing.T) {
	// The Docker image sets XDG_CONFIG_HOME=/config and expects the
	// config file directly there, not in an app subdirectory.
	t.Setenv("XDG_CONFIG_HOME", "/config")

	assert.Equal(t, "/config", getDefaultConfigDir())
}

func TestXDGConfigHomeGetsAppSubdir(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	assert.Equal(t, filepath.Join(tmpDir, "mulearr"), getDefaultConfigDir())
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir, `
host = "localhost"
port = 7476
sessionSecret = "test-secret"
logLevel = "INFO"

[amule]
host = "filehost"
`)

	t.Setenv("MULEARR__AMULE_HOST", "envhost")
	t.Setenv("MULEARR__LOG_LEVEL", "DEBUG")

	cfg, err := New(configPath)
	require.NoError(t, err)

	assert.Equal(t, "envhost", cfg.Config.Amule.Host, "environment variable should override config file")
	assert.Equal(t, "DEBUG", cfg.Config.LogLevel)
}
