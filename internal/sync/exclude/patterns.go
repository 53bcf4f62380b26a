package exclude

import (
	"path"
	"strings"
)

// Matcher decides which local paths a scan ignores. Paths are slash
// separated and relative to a repository root.
type Matcher struct {
	patterns []string
}

// New builds a matcher from user patterns. Nothing is excluded by default.
//
//	"dir/"   excludes a directory and everything below it
//	"*.tmp"  glob, matched against the whole path and the base name
//	"name"   exact path, path prefix, or file base name
func New(patterns []string) *Matcher {
	var cleaned []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		cleaned = append(cleaned, p)
	}
	return &Matcher{patterns: cleaned}
}

// Patterns returns the active patterns
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

func (m *Matcher) IsExcluded(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	relPath = strings.TrimPrefix(relPath, "./")
	for _, p := range m.patterns {
		if strings.HasSuffix(p, "/") {
			dirPattern := strings.TrimSuffix(p, "/")
			if relPath == dirPattern || strings.HasPrefix(relPath, dirPattern+"/") {
				return true
			}
			continue
		}
		if strings.ContainsAny(p, "*?[]") {
			if ok, _ := path.Match(p, relPath); ok {
				return true
			}
			if ok, _ := path.Match(p, path.Base(relPath)); ok {
				return true
			}
			continue
		}
		if relPath == p || strings.HasPrefix(relPath, p+"/") {
			return true
		}
		if !isDir && path.Base(relPath) == p {
			return true
		}
	}
	return false
}
