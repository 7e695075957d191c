package cloakkit

import "testing"

func TestShouldExclude(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{".", true},
		{"..", true},
		{".bashrc", true},
		{".git", true},
		{"project.git", true},
		{"my.gitignore.bak", true},
		{"notes.exclude", true},
		{"a.exclude.txt", true},
		{"repo/.git/config", true},
		{"report.txt", false},
		{"notes.txt", false},
		{"git", false},
		{"gitlab", false},
		{"exclude", false},
		{"data", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldExclude(tt.name); got != tt.want {
				t.Errorf("ShouldExclude(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestDefaultExclusions(t *testing.T) {
	sel := DefaultExclusions()

	hidden := &FileInfo{Name: ".cache", Type: TypeDir}
	if sel.Match(hidden) || sel.TraverseDescendants(hidden) {
		t.Error("expected hidden directory to be rejected")
	}

	plain := &FileInfo{Name: "src", Type: TypeDir}
	if !sel.Match(plain) || !sel.TraverseDescendants(plain) {
		t.Error("expected plain directory to be accepted")
	}
}
