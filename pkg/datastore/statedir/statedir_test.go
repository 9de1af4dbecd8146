package statedir

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/virtlab/netlab/pkg/environment"
)

func newTestRepository(t *testing.T) (environment.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repository, err := NewRepository(dir)
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}
	return repository, dir
}

func TestCreateFindDelete(t *testing.T) {
	repository, dir := newTestRepository(t)

	env := &environment.Environment{Name: "testenv-aaaa", Prefix: "fd00:aa:1::"}
	if err := repository.Create(env); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "testenv-aaaa.state")); err != nil {
		t.Fatalf("expected state record on disk: %v", err)
	}

	found, err := repository.Find("testenv-aaaa")
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if diff := cmp.Diff(env, found); diff != "" {
		t.Fatalf("Find mismatch (-want +got):\n%s", diff)
	}

	if err := repository.Delete("testenv-aaaa"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := repository.Find("testenv-aaaa"); !errors.Is(err, environment.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repository.Delete("testenv-aaaa"); !errors.Is(err, environment.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting missing record, got %v", err)
	}
}

func TestFindAllSorted(t *testing.T) {
	repository, _ := newTestRepository(t)

	for _, name := range []string{"zz", "aa", "mm"} {
		if err := repository.Create(&environment.Environment{Name: name, Prefix: "fd00:aa:1::"}); err != nil {
			t.Fatalf("Create %s returned error: %v", name, err)
		}
	}

	names, err := repository.FindAll()
	if err != nil {
		t.Fatalf("FindAll returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"aa", "mm", "zz"}, names); diff != "" {
		t.Fatalf("FindAll mismatch (-want +got):\n%s", diff)
	}
}

func TestNextNumberMonotonic(t *testing.T) {
	repository, dir := newTestRepository(t)

	for want := int64(1); want <= 3; want++ {
		got, err := repository.NextNumber()
		if err != nil {
			t.Fatalf("NextNumber returned error: %v", err)
		}
		if got != want {
			t.Fatalf("expected counter %d, got %d", want, got)
		}
	}

	// The counter persists across separate invocations.
	reopened, err := NewRepository(dir)
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}
	got, err := reopened.NextNumber()
	if err != nil {
		t.Fatalf("NextNumber returned error: %v", err)
	}
	if got != 4 {
		t.Fatalf("expected counter 4 after reopen, got %d", got)
	}

	data, err := os.ReadFile(filepath.Join(dir, "counter"))
	if err != nil {
		t.Fatalf("failed to read counter file: %v", err)
	}
	if string(data) != "4\n" {
		t.Fatalf("expected counter file to read 4, got %q", string(data))
	}
}

func TestCurrentSelection(t *testing.T) {
	repository, _ := newTestRepository(t)

	current, err := repository.Current()
	if err != nil {
		t.Fatalf("Current returned error: %v", err)
	}
	if current != "" {
		t.Fatalf("expected empty selection, got %q", current)
	}

	if err := repository.SetCurrent("testenv-aaaa"); err != nil {
		t.Fatalf("SetCurrent returned error: %v", err)
	}
	current, err = repository.Current()
	if err != nil {
		t.Fatalf("Current returned error: %v", err)
	}
	if current != "testenv-aaaa" {
		t.Fatalf("expected testenv-aaaa, got %q", current)
	}

	if err := repository.ClearCurrent(); err != nil {
		t.Fatalf("ClearCurrent returned error: %v", err)
	}
	if err := repository.ClearCurrent(); err != nil {
		t.Fatalf("ClearCurrent on empty selection returned error: %v", err)
	}
	current, err = repository.Current()
	if err != nil {
		t.Fatalf("Current returned error: %v", err)
	}
	if current != "" {
		t.Fatalf("expected empty selection after clear, got %q", current)
	}
}

func TestCompact(t *testing.T) {
	repository, dir := newTestRepository(t)

	if err := repository.Create(&environment.Environment{Name: "testenv-aaaa", Prefix: "fd00:aa:1::"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := repository.NextNumber(); err != nil {
		t.Fatalf("NextNumber returned error: %v", err)
	}
	if err := repository.SetCurrent("testenv-aaaa"); err != nil {
		t.Fatalf("SetCurrent returned error: %v", err)
	}

	// A record remains, compaction must be a no-op.
	if err := repository.Compact(); err != nil {
		t.Fatalf("Compact returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "counter")); err != nil {
		t.Fatalf("expected counter file to survive compaction: %v", err)
	}

	if err := repository.Delete("testenv-aaaa"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := repository.Compact(); err != nil {
		t.Fatalf("Compact returned error: %v", err)
	}
	for _, file := range []string{"counter", "current"} {
		if _, err := os.Stat(filepath.Join(dir, file)); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected %s file to be removed, got %v", file, err)
		}
	}

	// Numbering restarts at 1 on a compacted directory.
	number, err := repository.NextNumber()
	if err != nil {
		t.Fatalf("NextNumber returned error: %v", err)
	}
	if number != 1 {
		t.Fatalf("expected counter to restart at 1, got %d", number)
	}
}
