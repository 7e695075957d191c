package cloakkit

import (
	"context"
	"path"

	gitignore "github.com/monochromegane/go-gitignore"
)

type gitIgnoreSelector struct {
	matcher gitignore.IgnoreMatcher
}

// GitIgnore returns a selector honouring dir/.gitignore on fs. Paths are
// matched relative to dir. A missing or unreadable .gitignore yields All().
func GitIgnore(ctx context.Context, fs FileReader, dir string) FileSelector {
	rc, err := fs.Read(ctx, path.Join(dir, ".gitignore"))
	if err != nil {
		return All()
	}
	defer rc.Close()

	base := dir
	if base == "" {
		base = "."
	}
	return &gitIgnoreSelector{matcher: gitignore.NewGitIgnoreFromReader(base, rc)}
}

func (s *gitIgnoreSelector) Match(file *FileInfo) bool {
	return !s.matcher.Match(file.Path, false)
}

func (s *gitIgnoreSelector) TraverseDescendants(file *FileInfo) bool {
	return !s.matcher.Match(file.Path, true)
}
