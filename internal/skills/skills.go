// Package skills loads reusable instruction blocks that get injected into
// the agent's planning prompt when their trigger keywords match the user's
// request.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Skill is one instruction block with its trigger keywords.
type Skill struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Triggers     []string `yaml:"triggers"`
	Instructions string   `yaml:"instructions"`
}

// Load reads every .yaml/.yml file in dir. A missing directory is not an
// error; skills are optional.
func Load(dir string) ([]Skill, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read skills dir: %w", err)
	}

	var all []Skill
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read skill %s: %w", entry.Name(), err)
		}

		var sk Skill
		if err := yaml.Unmarshal(data, &sk); err != nil {
			return nil, fmt.Errorf("parse skill %s: %w", entry.Name(), err)
		}
		if sk.Name == "" {
			sk.Name = strings.TrimSuffix(entry.Name(), ext)
		}
		all = append(all, sk)
	}
	return all, nil
}

// Match returns the subset of skills whose triggers appear in the request,
// case-insensitively, preserving input order.
func Match(all []Skill, request string) []Skill {
	lower := strings.ToLower(request)

	var matched []Skill
	for _, sk := range all {
		for _, trigger := range sk.Triggers {
			if trigger == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(trigger)) {
				matched = append(matched, sk)
				break
			}
		}
	}
	return matched
}
