package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Artifact file names inside a repository's artifact directory. The same
// names are produced by coverage.py inside the repository checkout.
const (
	LogFile      = "coverage.log"
	MetadataFile = "metadata.json"
	SummaryFile  = "summary.json"
	CoverageData = ".coverage"
	CoverageJSON = "coverage.json"
	CoverageXML  = "coverage.xml"
	HTMLDir      = "htmlcov"
)

// Store manages coverage artifacts on disk, one directory per phase and
// one subdirectory per repository.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the artifacts root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the artifacts root.
func (s *Store) Root() string {
	return s.root
}

// PhaseDir returns the directory holding every repository of a phase.
func (s *Store) PhaseDir(p Phase) string {
	return filepath.Join(s.root, p.DirName())
}

// RepoDir returns the artifact directory for one repository in one phase.
func (s *Store) RepoDir(p Phase, repo string) string {
	return filepath.Join(s.PhaseDir(p), repo)
}

// ResetRepoDir empties and recreates a repository's artifact directory so a
// re-run never inherits files from a previous run in the same phase slot.
func (s *Store) ResetRepoDir(p Phase, repo string) (string, error) {
	dir := s.RepoDir(p, repo)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// SaveLog writes the repository's step log.
func (s *Store) SaveLog(p Phase, repo string, content string) error {
	return WriteAtomic(filepath.Join(s.RepoDir(p, repo), LogFile), []byte(content))
}

// GetLog reads the repository's step log.
func (s *Store) GetLog(p Phase, repo string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.RepoDir(p, repo), LogFile))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveMetadata writes the repository's metadata document.
func (s *Store) SaveMetadata(p Phase, repo string, md *Metadata) error {
	return WriteJSON(filepath.Join(s.RepoDir(p, repo), MetadataFile), md)
}

// GetMetadata reads the repository's metadata document.
func (s *Store) GetMetadata(p Phase, repo string) (*Metadata, error) {
	var md Metadata
	if err := ReadJSON(filepath.Join(s.RepoDir(p, repo), MetadataFile), &md); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("metadata for %s/%s not found", p, repo)
		}
		return nil, err
	}
	return &md, nil
}

// SummaryPath returns the location of the phase summary.
func (s *Store) SummaryPath(p Phase) string {
	return filepath.Join(s.PhaseDir(p), SummaryFile)
}

// SaveSummary writes the phase summary and returns its path.
func (s *Store) SaveSummary(sum *Summary) (string, error) {
	path := s.SummaryPath(sum.Phase)
	if err := WriteJSON(path, sum); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}

// GetSummary reads the phase summary.
func (s *Store) GetSummary(p Phase) (*Summary, error) {
	var sum Summary
	if err := ReadJSON(s.SummaryPath(p), &sum); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no %s summary under %s", p, s.root)
		}
		return nil, err
	}
	return &sum, nil
}

// ListRepos returns the repository directories present for a phase, sorted.
func (s *Store) ListRepos(p Phase) ([]string, error) {
	return ListDirs(s.PhaseDir(p))
}

// ListDirs returns the names of the subdirectories of dir, sorted.
func ListDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
