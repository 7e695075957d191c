package zip

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/gobeaver/cloakkit"
	"github.com/gobeaver/cloakkit/driver/memory"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	createTestZip(t, zipPath, map[string]string{
		"file1.txt":     "content1",
		"dir/file2.txt": "content2",
	})

	a, err := Open(zipPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if got := readString(t, a, "dir/file2.txt"); got != "content2" {
		t.Errorf("read %q", got)
	}

	info, err := a.Stat(ctx, "dir")
	if err != nil || !info.IsDir() {
		t.Errorf("expected implied directory, got %+v, %v", info, err)
	}
	if _, err := a.Stat(ctx, "dir/missing.txt"); !cloakkit.IsNotExist(err) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}

	if _, err := Open(filepath.Join(t.TempDir(), "missing.zip")); err == nil {
		t.Error("expected error for a missing archive")
	}
}

func TestWriteAndClose(t *testing.T) {
	ctx := context.Background()
	zipPath := filepath.Join(t.TempDir(), "out.zip")

	a, err := OpenOrCreate(zipPath)
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	if err := a.Write(ctx, "a/b.txt", strings.NewReader("bravo")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := a.Write(ctx, "a/b.txt", strings.NewReader("again")); !cloakkit.IsExist(err) {
		t.Errorf("expected ErrExist, got %v", err)
	}
	if err := a.Write(ctx, "a", strings.NewReader("x")); err == nil {
		t.Error("expected writing over a directory to fail")
	}

	// Staged writes are readable before Close
	if got := readString(t, a, "a/b.txt"); got != "bravo" {
		t.Errorf("staged read %q", got)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := a.Read(ctx, "a/b.txt"); err == nil {
		t.Error("expected reads after Close to fail")
	}

	got := readZip(t, zipPath)
	if got["a/b.txt"] != "bravo" || len(got) != 1 {
		t.Errorf("archive contents %v", got)
	}
}

func TestModifyExisting(t *testing.T) {
	ctx := context.Background()
	zipPath := filepath.Join(t.TempDir(), "edit.zip")
	createTestZip(t, zipPath, map[string]string{
		"keep.txt":   "keep",
		"drop.txt":   "drop",
		"change.txt": "old",
	})

	a, err := OpenOrCreate(zipPath)
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	if err := a.Delete(ctx, "drop.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := a.Delete(ctx, "drop.txt"); !cloakkit.IsNotExist(err) {
		t.Errorf("second delete: %v", err)
	}
	if err := a.Write(ctx, "change.txt", strings.NewReader("new"), cloakkit.WithOverwrite(true)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := a.CreateDir(ctx, "empty"); err != nil {
		t.Fatalf("CreateDir: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := readZip(t, zipPath)
	want := map[string]string{"keep.txt": "keep", "change.txt": "new", "empty/": ""}
	if len(got) != len(want) {
		t.Fatalf("archive contents %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestListContents(t *testing.T) {
	ctx := context.Background()
	zipPath := filepath.Join(t.TempDir(), "list.zip")
	createTestZip(t, zipPath, map[string]string{
		"root.txt":      "r",
		"d/one.txt":     "1",
		"d/sub/two.txt": "2",
	})
	a, err := Open(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	tests := []struct {
		dir  string
		want []string
	}{
		{"", []string{"d:dir", "root.txt:file"}},
		{"d", []string{"d/one.txt:file", "d/sub:dir"}},
		{"/d/sub/", []string{"d/sub/two.txt:file"}},
	}
	for _, tt := range tests {
		entries, err := a.ListContents(ctx, tt.dir)
		if err != nil {
			t.Fatalf("ListContents(%q): %v", tt.dir, err)
		}
		var got []string
		for _, e := range entries {
			got = append(got, e.Path+":"+e.Type.String())
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("ListContents(%q) = %v, want %v", tt.dir, got, tt.want)
		}
	}

	if _, err := a.ListContents(ctx, "root.txt"); err == nil {
		t.Error("expected listing a file to fail")
	}
	if _, err := a.ListContents(ctx, "nope"); !cloakkit.IsNotExist(err) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
	if _, err := a.Read(ctx, "../etc/passwd"); err == nil {
		t.Error("expected traversal to be refused")
	}
}

func TestScanArchive(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "tree.zip")
	createTestZip(t, zipPath, map[string]string{
		"src/main.go":       "package main",
		"src/.git/HEAD":     "ref",
		"src/pkg/util.go":   "package pkg",
		"src/notes.exclude": "marked",
	})
	a, err := Open(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	list, err := cloakkit.ScanRecursive(context.Background(), a, "src", 10)
	if err != nil {
		t.Fatalf("ScanRecursive: %v", err)
	}
	got := list.Paths()
	sort.Strings(got)
	want := []string{"src/main.go", "src/pkg/util.go"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestChecksum(t *testing.T) {
	ctx := context.Background()
	zipPath := filepath.Join(t.TempDir(), "sum.zip")
	createTestZip(t, zipPath, map[string]string{"c.txt": "123456789"})

	a, err := Open(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	sum, err := a.Checksum(ctx, "c.txt", cloakkit.ChecksumCRC32)
	if err != nil || sum != "cbf43926" {
		t.Errorf("stored crc32 = %s, %v", sum, err)
	}

	if err := a.Write(ctx, "staged.txt", strings.NewReader("123456789")); err != nil {
		t.Fatal(err)
	}
	sum, err = a.Checksum(ctx, "staged.txt", cloakkit.ChecksumCRC32)
	if err != nil || sum != "cbf43926" {
		t.Errorf("computed crc32 = %s, %v", sum, err)
	}

	sum, err = a.Checksum(ctx, "c.txt", cloakkit.ChecksumSHA256)
	if err != nil || sum != "15e2b0d3c33891ebb0f1ef609ec419420c20e320ce94c65fbc8c3312448eb225" {
		t.Errorf("sha256 = %s, %v", sum, err)
	}
}

func TestPipelineIntoArchive(t *testing.T) {
	ctx := context.Background()
	src := memory.New()
	for name, content := range map[string]string{"in/a.txt": "alpha", "in/b/c.txt": "charlie"} {
		if err := src.Write(ctx, name, strings.NewReader(content)); err != nil {
			t.Fatal(err)
		}
	}

	zipPath := filepath.Join(t.TempDir(), "sealed.zip")
	dst, err := Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}

	p, err := cloakkit.NewPipeline(src, dst, cloakkit.Rot13(),
		cloakkit.WithOutputName(func(p string) string { return p + ".rot" }))
	if err != nil {
		t.Fatal(err)
	}
	report, err := p.Run(ctx, "in")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Processed != 2 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if err := dst.Close(); err != nil {
		t.Fatal(err)
	}

	got := readZip(t, zipPath)
	if got["in/a.txt.rot"] != "nycun" || got["in/b/c.txt.rot"] != "puneyvr" {
		t.Errorf("archive contents %v", got)
	}
}

func readString(t *testing.T, a *Adapter, p string) string {
	t.Helper()
	rc, err := a.Read(context.Background(), p)
	if err != nil {
		t.Fatalf("Read(%s): %v", p, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

// readZip returns every member of the archive, directories with a trailing
// slash and empty content.
func readZip(t *testing.T, zipPath string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("open %s: %v", zipPath, err)
	}
	defer r.Close()

	out := make(map[string]string)
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			if !strings.HasSuffix(f.Name, "/") {
				t.Errorf("directory %s without trailing slash", f.Name)
			}
			// Implied parents of files are not interesting here
			if f.Name != "empty/" {
				continue
			}
			out[f.Name] = ""
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		out[f.Name] = string(b)
	}
	return out
}

func createTestZip(t *testing.T, zipPath string, files map[string]string) {
	t.Helper()

	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("failed to create test zip: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to finalize test zip: %v", err)
	}
}
