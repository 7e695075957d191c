package cloakkit

import (
	"path"
	"testing"
)

func fileInfo(p string) *FileInfo {
	return &FileInfo{Name: path.Base(p), Path: p, Type: TypeRegular}
}

func dirInfo(p string) *FileInfo {
	f := fileInfo(p)
	f.Type = TypeDir
	return f
}

func TestGlob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.txt", "a.txt", true},
		{"*.txt", "deep/nested/a.txt", true},
		{"*.txt", "a.md", false},
		{"docs/*.md", "docs/readme.md", true},
		{"docs/*.md", "docs/sub/readme.md", false},
		{"docs/**.md", "docs/sub/readme.md", true},
		{"{a,b}_?.bin", "b_x.bin", true},
		{"{a,b}_?.bin", "c_x.bin", false},
		{"[", "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.path, func(t *testing.T) {
			if got := Glob(tt.pattern).Match(fileInfo(tt.path)); got != tt.want {
				t.Errorf("Glob(%q).Match(%q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}

	if !Glob("*.txt").TraverseDescendants(dirInfo("src")) {
		t.Error("expected valid glob to traverse directories")
	}
	if Glob("[").TraverseDescendants(dirInfo("src")) {
		t.Error("expected invalid glob to prune everything")
	}
}

func TestDepth(t *testing.T) {
	sel := Depth(2, "root")

	tests := []struct {
		path     string
		match    bool
		traverse bool
	}{
		{"root/a", true, true},
		{"root/a/b", true, false},
		{"root/a/b/c", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := sel.Match(fileInfo(tt.path)); got != tt.match {
				t.Errorf("Match = %v, want %v", got, tt.match)
			}
			if got := sel.TraverseDescendants(dirInfo(tt.path)); got != tt.traverse {
				t.Errorf("TraverseDescendants = %v, want %v", got, tt.traverse)
			}
		})
	}

	if !Depth(1, ".").Match(fileInfo("top.txt")) {
		t.Error("expected '.' base to count from the root")
	}
}

func TestComposedSelectors(t *testing.T) {
	txt := Glob("*.txt")
	small := FuncSelector(func(f *FileInfo) bool { return f.Size < 10 })

	big := fileInfo("big.txt")
	big.Size = 100
	little := fileInfo("little.txt")
	little.Size = 1
	other := fileInfo("other.bin")

	tests := []struct {
		name string
		sel  FileSelector
		f    *FileInfo
		want bool
	}{
		{"and both", And(txt, small), little, true},
		{"and one", And(txt, small), big, false},
		{"and empty", And(), other, true},
		{"or one", Or(txt, small), big, true},
		{"or none", Or(Glob("*.md"), Not(All())), other, false},
		{"not", Not(txt), other, true},
		{"not match", Not(txt), little, false},
		{"all", All(), other, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sel.Match(tt.f); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}

	noVendor := FuncSelectorFull(nil, func(f *FileInfo) bool { return f.Name != "vendor" })
	if Not(noVendor).TraverseDescendants(dirInfo("vendor")) != true {
		t.Error("expected Not to always allow traversal")
	}
	if And(All(), noVendor).TraverseDescendants(dirInfo("vendor")) {
		t.Error("expected And to prune when any selector prunes")
	}
	if !Or(All(), noVendor).TraverseDescendants(dirInfo("vendor")) {
		t.Error("expected Or to traverse when any selector allows")
	}
}
