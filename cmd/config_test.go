package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatchpad/hatchpad/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	viper.Reset()
	viper.SetDefault("db_path", filepath.Join(dir, "hatchpad.db"))
	viper.SetDefault("port", 8080)
	viper.SetDefault("skills_dir", filepath.Join(dir, "skills"))
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	viper.SetDefault("github.token", "")
	viper.SetDefault("providers.default", "")

	ui = output.New()

	return dir
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hatchpad configuration")
	assert.Contains(t, string(data), "providers")
	assert.Contains(t, string(data), "homestead")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir := testEnv(t)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	t.Cleanup(func() { configForce = false })
	require.NoError(t, configInitRun())

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hatchpad configuration")
}

func TestConfigShow_ReportsSources(t *testing.T) {
	dir := testEnv(t)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("port: 9090\n"), 0644))

	fileValues := readConfigFileValues(cfgPath)
	assert.Equal(t, "(file)", detectSource("port", "HATCHPAD_PORT", fileValues))
	assert.Equal(t, "(default)", detectSource("db_path", "HATCHPAD_DB_PATH", fileValues))

	t.Setenv("HATCHPAD_DB_PATH", "/tmp/x.db")
	assert.Equal(t, "(env: HATCHPAD_DB_PATH)", detectSource("db_path", "HATCHPAD_DB_PATH", fileValues))
}

func TestRepoNameFromURL(t *testing.T) {
	assert.Equal(t, "webapp", repoNameFromURL("https://github.com/acme/webapp.git"))
	assert.Equal(t, "webapp", repoNameFromURL("git@github.com:acme/webapp.git"))
	assert.Equal(t, "webapp", repoNameFromURL("webapp"))
}
