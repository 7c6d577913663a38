package ps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPS(t *testing.T) {
	m, err := MemoryStatus()
	if err != nil {
		t.Fatal(err)
	}
	if m.Total == 0 {
		t.Fatalf("unexpected memory %+v", m)
	}
	t.Log(m.Human)

	c, err := CPUStatus()
	if err != nil {
		t.Fatal(err)
	}
	t.Log(c)
}

func TestDirDiskUsage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 28), 0600); err != nil {
		t.Fatal(err)
	}

	size, err := DirDiskUsage(dir)
	if err != nil {
		t.Fatal(err)
	}
	if size != 128 {
		t.Fatalf("want 128 bytes, got %d", size)
	}

	d, err := DiskStatus(dir)
	if err != nil {
		t.Fatal(err)
	}
	if d.DirSize != 128 || d.Total == 0 {
		t.Fatalf("unexpected disk status %+v", d)
	}
}
