package cloakkit

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// sampleTree mirrors a small project directory:
//
//	docs/a.txt
//	docs/.secret
//	docs/sub/b.txt
//	docs/.git/config
//	docs/notes.exclude
//	docs/sub/deep/c.txt
func sampleTree() *testFS {
	return newTestFS().put(
		"docs/a.txt", "alpha",
		"docs/.secret", "hidden",
		"docs/sub/b.txt", "bravo",
		"docs/.git/config", "[core]",
		"docs/notes.exclude", "skip me",
		"docs/sub/deep/c.txt", "charlie",
	)
}

func TestWalkerScan(t *testing.T) {
	ctx := context.Background()

	list, err := Scan(ctx, sampleTree(), "docs", 10)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	want := []string{"docs/a.txt"}
	if got := list.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("Scan = %v, want %v", got, want)
	}
}

func TestWalkerScanRecursive(t *testing.T) {
	ctx := context.Background()

	list, err := ScanRecursive(ctx, sampleTree(), "docs", 10)
	if err != nil {
		t.Fatalf("ScanRecursive: %v", err)
	}

	want := []string{"docs/a.txt", "docs/sub/b.txt", "docs/sub/deep/c.txt"}
	if got := list.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("ScanRecursive = %v, want %v", got, want)
	}

	for _, e := range list.Entries() {
		if !e.Info().IsRegular() {
			t.Errorf("%s: expected regular file", e.Path())
		}
		if e.Info().Path != e.Path() {
			t.Errorf("info path %q != entry path %q", e.Info().Path, e.Path())
		}
	}
}

func TestWalkerRootVariants(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS().put("top.txt", "1", "dir/inner.txt", "2")

	for _, root := range []string{"", "."} {
		list, err := ScanRecursive(ctx, fs, root, 10)
		if err != nil {
			t.Fatalf("root %q: %v", root, err)
		}
		want := []string{"top.txt", "dir/inner.txt"}
		if got := list.Paths(); !reflect.DeepEqual(got, want) {
			t.Errorf("root %q: got %v, want %v", root, got, want)
		}
	}
}

func TestWalkerMaxFiles(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS()
	for i := 0; i < 20; i++ {
		fs.put("many/f"+string(rune('a'+i))+".txt", "x")
	}

	t.Run("stops at capacity", func(t *testing.T) {
		list, err := ScanRecursive(ctx, fs, "many", 5)
		if err != nil {
			t.Fatalf("ScanRecursive: %v", err)
		}
		if list.Len() != 5 || !list.Full() {
			t.Errorf("expected 5 entries and a full list, got %d", list.Len())
		}
		if list.Paths()[0] != "many/fa.txt" {
			t.Errorf("expected discovery order, got %v", list.Paths())
		}
	})

	t.Run("flat scan stops at capacity", func(t *testing.T) {
		list, err := Scan(ctx, fs, "many", 3)
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if list.Len() != 3 {
			t.Errorf("expected 3 entries, got %d", list.Len())
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		for _, max := range []int{0, -1} {
			if _, err := ScanRecursive(ctx, fs, "many", max); !errors.Is(err, ErrInvalidLimit) {
				t.Errorf("max=%d: expected ErrInvalidLimit, got %v", max, err)
			}
			if _, err := Scan(ctx, fs, "many", max); !errors.Is(err, ErrInvalidLimit) {
				t.Errorf("max=%d: expected ErrInvalidLimit, got %v", max, err)
			}
		}
	})
}

func TestWalkerBestEffort(t *testing.T) {
	ctx := context.Background()

	t.Run("missing root yields empty list", func(t *testing.T) {
		var skipped []string
		w := NewWalker(newTestFS(), WithSkipHandler(func(p string, err error) {
			skipped = append(skipped, p)
		}))

		list, err := w.ScanRecursive(ctx, "nope", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if list.Len() != 0 {
			t.Errorf("expected empty list, got %v", list.Paths())
		}
		if len(skipped) != 1 || skipped[0] != "nope" {
			t.Errorf("expected root to be reported, got %v", skipped)
		}

		flat, err := w.Scan(ctx, "nope", 10)
		if err != nil || flat.Len() != 0 {
			t.Errorf("flat scan: list=%v err=%v", flat, err)
		}
	})

	t.Run("root is a file", func(t *testing.T) {
		fs := newTestFS().put("file.txt", "x")
		list, err := ScanRecursive(ctx, fs, "file.txt", 10)
		if err != nil || list.Len() != 0 {
			t.Errorf("expected empty result, got list=%v err=%v", list.Paths(), err)
		}
	})

	t.Run("unreadable subdirectory is skipped", func(t *testing.T) {
		fs := sampleTree()
		fs.failList["docs/sub"] = ErrPermission

		var skipErr error
		list, err := ScanRecursive(ctx, fs, "docs", 10, WithSkipHandler(func(p string, err error) {
			if p == "docs/sub" {
				skipErr = err
			}
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := list.Paths(); !reflect.DeepEqual(got, []string{"docs/a.txt"}) {
			t.Errorf("got %v", got)
		}
		if !IsPermission(skipErr) {
			t.Errorf("expected permission error for docs/sub, got %v", skipErr)
		}
	})
}

func TestWalkerSelector(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS().put(
		"src/main.go", "package main",
		"src/README.md", "# readme",
		"src/vendor/lib.go", "package lib",
		"src/pkg/util.go", "package pkg",
	)

	t.Run("glob on name", func(t *testing.T) {
		list, err := ScanRecursive(ctx, fs, "src", 10, WithSelector(Glob("*.go")))
		if err != nil {
			t.Fatalf("ScanRecursive: %v", err)
		}
		want := []string{"src/main.go", "src/vendor/lib.go", "src/pkg/util.go"}
		if got := list.Paths(); !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("pruned directory", func(t *testing.T) {
		noVendor := FuncSelectorFull(
			func(*FileInfo) bool { return true },
			func(f *FileInfo) bool { return f.Name != "vendor" },
		)
		list, err := ScanRecursive(ctx, fs, "src", 10, WithSelector(noVendor))
		if err != nil {
			t.Fatalf("ScanRecursive: %v", err)
		}
		for _, p := range list.Paths() {
			if strings.Contains(p, "vendor") {
				t.Errorf("expected vendor to be pruned, got %s", p)
			}
		}
		if list.Len() != 3 {
			t.Errorf("expected 3 files, got %v", list.Paths())
		}
	})
}

func TestWalkerPathLength(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("d", 40)
	fs := newTestFS().put("r/short.txt", "1", "r/"+long+"/f.txt", "2")

	var tooLong []string
	list, err := ScanRecursive(ctx, fs, "r", 10,
		WithMaxPathLength(32),
		WithSkipHandler(func(p string, err error) {
			if errors.Is(err, ErrPathTooLong) {
				tooLong = append(tooLong, p)
			}
		}),
	)
	if err != nil {
		t.Fatalf("ScanRecursive: %v", err)
	}
	if got := list.Paths(); !reflect.DeepEqual(got, []string{"r/short.txt"}) {
		t.Errorf("got %v", got)
	}
	if len(tooLong) != 1 {
		t.Errorf("expected one oversized path to be reported, got %v", tooLong)
	}
}

func TestWalkerContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ScanRecursive(ctx, sampleTree(), "docs", 10)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestScanRecursiveInto(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS().put("a/1.txt", "1", "a/2.txt", "2", "b/3.txt", "3", "b/4.txt", "4")

	list, _ := NewFileList(3)
	w := NewWalker(fs)

	n, err := w.ScanRecursiveInto(ctx, "a", list)
	if err != nil || n != 2 {
		t.Fatalf("first root: n=%d err=%v", n, err)
	}
	n, err = w.ScanRecursiveInto(ctx, "b", list)
	if err != nil || n != 3 {
		t.Fatalf("second root: n=%d err=%v", n, err)
	}
	if got := list.Paths(); !reflect.DeepEqual(got, []string{"a/1.txt", "a/2.txt", "b/3.txt"}) {
		t.Errorf("got %v", got)
	}

	if _, err := w.ScanRecursiveInto(ctx, "a", nil); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit for nil list, got %v", err)
	}
}

func TestNewFileEntry(t *testing.T) {
	regular := FileInfo{Name: "f", Type: TypeRegular, Size: 3}

	tests := []struct {
		name    string
		path    string
		info    FileInfo
		wantErr error
	}{
		{"valid", "dir/f", regular, nil},
		{"empty path", "", regular, ErrNotExist},
		{"directory", "dir", FileInfo{Name: "dir", Type: TypeDir}, ErrIsDir},
		{"too long", strings.Repeat("x", MaxPathLength+1), regular, ErrPathTooLong},
		{"at limit", strings.Repeat("x", MaxPathLength), regular, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewFileEntry(tt.path, tt.info)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if e.Path() != tt.path || e.Info().Size != 3 {
				t.Errorf("unexpected entry %+v", e)
			}
		})
	}
}

func TestFileList(t *testing.T) {
	list, err := NewFileList(2)
	if err != nil {
		t.Fatalf("NewFileList: %v", err)
	}

	e1, _ := NewFileEntry("a", FileInfo{Type: TypeRegular})
	e2, _ := NewFileEntry("b", FileInfo{Type: TypeRegular})
	e3, _ := NewFileEntry("c", FileInfo{Type: TypeRegular})

	if !list.Add(e1) || !list.Add(e2) {
		t.Fatal("expected first two adds to succeed")
	}
	if list.Add(e3) {
		t.Error("expected add beyond capacity to fail")
	}
	if list.Len() != 2 || list.Max() != 2 || !list.Full() {
		t.Errorf("unexpected state len=%d max=%d", list.Len(), list.Max())
	}
	if list.At(1).Path() != "b" {
		t.Errorf("At(1) = %s", list.At(1).Path())
	}

	entries := list.Entries()
	entries[0] = e3
	if list.At(0).Path() != "a" {
		t.Error("expected Entries to return a copy")
	}
}
