package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultReposFile is the repositories list used when none is given.
const DefaultReposFile = "evals/github_repos.yaml"

// LoadRepos reads the repositories file. A missing or empty file yields an
// empty list, not an error.
func LoadRepos(path string) ([]RepoConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading repos file: %w", err)
	}

	var entries []RepoEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing repos YAML: %w", err)
	}

	repos := make([]RepoConfig, 0, len(entries))
	for _, e := range entries {
		repos = append(repos, e.Config)
	}
	return repos, nil
}

// ByName indexes repositories by name. Later entries win on duplicates;
// Validate reports those.
func ByName(repos []RepoConfig) map[string]RepoConfig {
	m := make(map[string]RepoConfig, len(repos))
	for _, r := range repos {
		m[r.Name] = r
	}
	return m
}
