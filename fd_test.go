package kernel

import (
	"testing"

	"github.com/spf13/afero"
)

func newTestFile(t *testing.T, path string) afero.File {
	t.Helper()
	fs := afero.NewMemMapFs()
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("failed to create backing file: %v", err)
	}
	return f
}

func TestFDTableInstallStartsAtThree(t *testing.T) {
	table := newFDTable()
	fd := table.install(newTestFile(t, "/a"), "/a", AccessRead)
	if fd != 3 {
		t.Fatalf("expected first descriptor to be 3, got %d", fd)
	}
}

func TestFDTableGetMissingFailsBadDescriptor(t *testing.T) {
	table := newFDTable()
	_, err := table.get(99)
	if Translate(err) != BadDescriptor {
		t.Fatalf("expected BadDescriptor, got %v", err)
	}
}

func TestFDTableReleaseClosesAndForgets(t *testing.T) {
	table := newFDTable()
	fd := table.install(newTestFile(t, "/a"), "/a", AccessWrite)

	if err := table.release(fd); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := table.get(fd); Translate(err) != BadDescriptor {
		t.Fatalf("expected descriptor to be gone after release, got %v", err)
	}
	if err := table.release(fd); Translate(err) != BadDescriptor {
		t.Fatalf("expected double-release to fail BadDescriptor, got %v", err)
	}
}

func TestFDTableCloseAllReleasesEverything(t *testing.T) {
	table := newFDTable()
	fd1 := table.install(newTestFile(t, "/a"), "/a", AccessRead)
	fd2 := table.install(newTestFile(t, "/b"), "/b", AccessRead)

	table.closeAll()

	if _, err := table.get(fd1); Translate(err) != BadDescriptor {
		t.Fatalf("expected fd1 gone after closeAll")
	}
	if _, err := table.get(fd2); Translate(err) != BadDescriptor {
		t.Fatalf("expected fd2 gone after closeAll")
	}
}

func TestFDTableIsolatedPerProcess(t *testing.T) {
	tableA := newFDTable()
	tableB := newFDTable()

	fd := tableA.install(newTestFile(t, "/a"), "/a", AccessRead)

	if _, err := tableB.get(fd); Translate(err) != BadDescriptor {
		t.Fatalf("expected a descriptor from one process's table to be meaningless in another's")
	}
}
