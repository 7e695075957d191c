package cloakkit

import "strings"

// Built-in exclusion markers. Matching is plain substring containment.
var exclusionMarkers = []string{".git", ".exclude"}

// ShouldExclude reports whether a directory entry name must be skipped:
// hidden names (including "." and ".."), version-control metadata and
// names carrying an explicit ".exclude" marker.
func ShouldExclude(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, marker := range exclusionMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

type defaultExclusions struct{}

// DefaultExclusions returns a selector that rejects files and directories
// whose name ShouldExclude matches.
func DefaultExclusions() FileSelector {
	return defaultExclusions{}
}

func (defaultExclusions) Match(file *FileInfo) bool {
	return !ShouldExclude(file.Name)
}

func (defaultExclusions) TraverseDescendants(file *FileInfo) bool {
	return !ShouldExclude(file.Name)
}
