package cloakkit

import (
	"strings"

	"github.com/gobwas/glob"
)

// ============================================================================
// FileSelector Interface
// ============================================================================

// FileSelector decides which entries a Walker keeps.
//
// Selectors compose with And, Or and Not:
//
//	selector := cloakkit.And(
//	    cloakkit.Glob("**/*.txt"),
//	    cloakkit.FuncSelector(func(f *cloakkit.FileInfo) bool {
//	        return f.Size < 10*1024*1024
//	    }),
//	)
//	list, err := cloakkit.NewWalker(fs, cloakkit.WithSelector(selector)).ScanRecursive(ctx, ".", 100)
type FileSelector interface {
	// Match returns true if the file should be included in results.
	Match(file *FileInfo) bool

	// TraverseDescendants returns true if directory descendants should be traversed.
	// Only called for directories.
	TraverseDescendants(file *FileInfo) bool
}

// AllSelector matches all files and traverses all directories.
type AllSelector struct{}

func (s AllSelector) Match(file *FileInfo) bool               { return true }
func (s AllSelector) TraverseDescendants(file *FileInfo) bool { return true }

// All returns a selector that matches everything.
func All() FileSelector {
	return AllSelector{}
}

// ============================================================================
// Glob - Pattern matching
// ============================================================================

type globSelector struct {
	pattern string
	matcher glob.Glob
	byPath  bool
}

// Glob creates a selector from a glob pattern using '/' as separator.
// Patterns without a separator match the base name, patterns with one match
// the full path. An invalid pattern matches nothing.
//
// Examples:
//
//	Glob("*.txt")         // any .txt file, any depth
//	Glob("docs/**.md")    // markdown below docs/
//	Glob("{a,b}_?.bin")   // a_1.bin, b_x.bin, ...
func Glob(pattern string) FileSelector {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return &globSelector{pattern: pattern}
	}
	return &globSelector{
		pattern: pattern,
		matcher: g,
		byPath:  strings.Contains(pattern, "/"),
	}
}

func (s *globSelector) Match(file *FileInfo) bool {
	if s.matcher == nil {
		return false
	}
	if s.byPath {
		return s.matcher.Match(file.Path)
	}
	return s.matcher.Match(file.Name)
}

func (s *globSelector) TraverseDescendants(file *FileInfo) bool {
	return s.matcher != nil
}

// ============================================================================
// Depth - Depth limiting
// ============================================================================

type depthSelector struct {
	maxDepth int
	basePath string
}

// Depth limits traversal to maxDepth levels below basePath.
// Depth 1 = immediate children only.
func Depth(maxDepth int, basePath string) FileSelector {
	base := strings.Trim(basePath, "/")
	if base == "." {
		base = ""
	}
	return &depthSelector{
		maxDepth: maxDepth,
		basePath: base,
	}
}

func (s *depthSelector) getDepth(path string) int {
	rel := strings.TrimPrefix(strings.Trim(path, "/"), s.basePath)
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

func (s *depthSelector) Match(file *FileInfo) bool {
	return s.getDepth(file.Path) <= s.maxDepth
}

func (s *depthSelector) TraverseDescendants(file *FileInfo) bool {
	return s.getDepth(file.Path) < s.maxDepth
}

// ============================================================================
// Composable Selectors (And, Or, Not)
// ============================================================================

type andSelector struct {
	selectors []FileSelector
}

// And matches only if ALL selectors match.
// Directories are traversed only if every selector allows it.
func And(selectors ...FileSelector) FileSelector {
	return &andSelector{selectors: selectors}
}

func (s *andSelector) Match(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if !sel.Match(file) {
			return false
		}
	}
	return true
}

func (s *andSelector) TraverseDescendants(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if !sel.TraverseDescendants(file) {
			return false
		}
	}
	return true
}

type orSelector struct {
	selectors []FileSelector
}

// Or matches if ANY selector matches.
func Or(selectors ...FileSelector) FileSelector {
	return &orSelector{selectors: selectors}
}

func (s *orSelector) Match(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if sel.Match(file) {
			return true
		}
	}
	return false
}

func (s *orSelector) TraverseDescendants(file *FileInfo) bool {
	for _, sel := range s.selectors {
		if sel.TraverseDescendants(file) {
			return true
		}
	}
	return false
}

type notSelector struct {
	selector FileSelector
}

// Not inverts a selector's match result. Traversal is always allowed.
func Not(selector FileSelector) FileSelector {
	return &notSelector{selector: selector}
}

func (s *notSelector) Match(file *FileInfo) bool {
	return !s.selector.Match(file)
}

func (s *notSelector) TraverseDescendants(file *FileInfo) bool {
	return true
}

// ============================================================================
// FuncSelector - Custom logic
// ============================================================================

type funcSelector struct {
	matchFn    func(*FileInfo) bool
	traverseFn func(*FileInfo) bool
}

// FuncSelector creates a selector from a custom match function.
// All directories are traversed.
func FuncSelector(fn func(*FileInfo) bool) FileSelector {
	return &funcSelector{
		matchFn:    fn,
		traverseFn: func(*FileInfo) bool { return true },
	}
}

// FuncSelectorFull creates a selector with custom match and traverse functions.
func FuncSelectorFull(matchFn, traverseFn func(*FileInfo) bool) FileSelector {
	return &funcSelector{
		matchFn:    matchFn,
		traverseFn: traverseFn,
	}
}

func (s *funcSelector) Match(file *FileInfo) bool               { return s.matchFn(file) }
func (s *funcSelector) TraverseDescendants(file *FileInfo) bool { return s.traverseFn(file) }
