package config

import (
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"

	"stagefs/internal/tree"
)

// BuildFilter creates a tree.Filter for a project rooted at projectDir.
// Tree paths are absolute ("/src/main.go") and are matched relative to the root:
// 1. The .stagefs directory is always hidden
// 2. Excludes hide a path and everything under it (highest priority)
// 3. Includes show a path even if gitignored
// 4. Gitignore rules found under projectDir apply last
func BuildFilter(projectDir string, gitignoreEnabled bool, includes, excludes []string) tree.Filter {
	var matcher *gitignoreMatcher
	if gitignoreEnabled && projectDir != "" {
		var err error
		matcher, err = newGitignoreMatcher(projectDir)
		if err != nil {
			log.Warnf("[Filter] failed to build gitignore matcher: %v", err)
		}
	}

	return func(path string, isDir bool) bool {
		relPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		if relPath == "" {
			return true
		}

		if underPrefix(relPath, ProjectDirName) {
			return false
		}
		for _, exc := range excludes {
			if underPrefix(relPath, exc) {
				return false
			}
		}
		for _, inc := range includes {
			if underPrefix(relPath, inc) {
				return true
			}
		}
		if matcher != nil && matcher.isIgnored(relPath, isDir) {
			return false
		}
		return true
	}
}

// BuildFilterFromConfig creates a filter from a ProjectConfig.
// If cfg is nil, returns nil (no filtering).
func BuildFilterFromConfig(projectDir string, cfg *ProjectConfig) tree.Filter {
	if cfg == nil {
		return nil
	}
	return BuildFilter(projectDir, cfg.GitignoreEnabled(), cfg.Includes, cfg.Excludes)
}

func underPrefix(relPath, prefix string) bool {
	prefix = strings.Trim(filepath.ToSlash(prefix), "/")
	if prefix == "" {
		return false
	}
	return relPath == prefix || strings.HasPrefix(relPath, prefix+"/")
}

// gitignoreMatcher collects .gitignore rules from a project tree
type gitignoreMatcher struct {
	matchers []scopedMatcher
}

type scopedMatcher struct {
	dirPrefix string
	ignore    *ignore.GitIgnore
}

func newGitignoreMatcher(projectDir string) (*gitignoreMatcher, error) {
	m := &gitignoreMatcher{}

	err := filepath.WalkDir(projectDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != projectDir && (d.Name() == ".git" || d.Name() == ProjectDirName) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ".gitignore" {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		relDir, relErr := filepath.Rel(projectDir, filepath.Dir(path))
		if relErr != nil {
			return nil
		}
		if relDir == "." {
			relDir = ""
		}

		m.matchers = append(m.matchers, scopedMatcher{
			dirPrefix: filepath.ToSlash(relDir),
			ignore:    ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("[Filter] loaded %d .gitignore files under %s", len(m.matchers), projectDir)
	return m, nil
}

func (m *gitignoreMatcher) isIgnored(relPath string, isDir bool) bool {
	if m == nil || len(m.matchers) == 0 {
		return false
	}

	checkPath := relPath
	if isDir {
		checkPath = relPath + "/"
	}

	for _, sm := range m.matchers {
		pathToCheck := checkPath
		if sm.dirPrefix != "" {
			prefix := sm.dirPrefix + "/"
			if !strings.HasPrefix(relPath, prefix) {
				continue
			}
			pathToCheck = strings.TrimPrefix(checkPath, prefix)
		}
		if sm.ignore.MatchesPath(pathToCheck) {
			return true
		}
	}
	return false
}
