package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "theming.yaml", `
name: theming
triggers: ["dark mode", "theme"]
instructions: Use CSS custom properties for colors.
`)
	writeSkill(t, dir, "auth.yml", `
triggers: ["login", "auth"]
instructions: Never store passwords in plain text.
`)
	writeSkill(t, dir, "README.md", "not a skill")

	all, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "auth", all[0].Name, "name defaults to the filename")
	assert.Equal(t, "theming", all[1].Name)
}

func TestLoad_MissingDirIsEmpty(t *testing.T) {
	all, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMatch(t *testing.T) {
	all := []Skill{
		{Name: "theming", Triggers: []string{"dark mode", "theme"}},
		{Name: "auth", Triggers: []string{"login"}},
		{Name: "empty", Triggers: []string{""}},
	}

	matched := Match(all, "Please add Dark Mode to the settings page")
	require.Len(t, matched, 1)
	assert.Equal(t, "theming", matched[0].Name)

	assert.Empty(t, Match(all, "speed up the build"))
}
