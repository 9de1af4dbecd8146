// Package statedir persists the environment registry as plain files under a
// single state directory: one <name>.state file per environment holding its
// address prefix, a counter file with the highest allocated number and a
// current file naming the selected environment.
//
// Writes are plain overwrites, not atomic renames. Concurrent invocations of
// the tool race on the counter and selection files; the tool is meant for
// single-operator, sequential use.
package statedir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/virtlab/netlab/pkg/environment"
)

const (
	stateSuffix = ".state"
	counterFile = "counter"
	currentFile = "current"
)

type repository struct {
	dir string
}

func NewRepository(dir string) (environment.Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return &repository{dir: dir}, nil
}

func (r *repository) Find(name string) (*environment.Environment, error) {
	data, err := os.ReadFile(r.statePath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", environment.ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read state record for %s: %w", name, err)
	}
	return &environment.Environment{
		Name:   name,
		Prefix: strings.TrimSpace(string(data)),
	}, nil
}

func (r *repository) FindAll() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list state directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), stateSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), stateSuffix))
	}
	sort.Strings(names)
	return names, nil
}

func (r *repository) Create(env *environment.Environment) error {
	if err := os.WriteFile(r.statePath(env.Name), []byte(env.Prefix+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write state record for %s: %w", env.Name, err)
	}
	return nil
}

func (r *repository) Delete(name string) error {
	if err := os.Remove(r.statePath(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", environment.ErrNotFound, name)
		}
		return fmt.Errorf("failed to remove state record for %s: %w", name, err)
	}
	return nil
}

func (r *repository) Current() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, currentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read current selection: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (r *repository) SetCurrent(name string) error {
	if err := os.WriteFile(filepath.Join(r.dir, currentFile), []byte(name+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write current selection: %w", err)
	}
	return nil
}

func (r *repository) ClearCurrent() error {
	if err := os.Remove(filepath.Join(r.dir, currentFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear current selection: %w", err)
	}
	return nil
}

func (r *repository) NextNumber() (int64, error) {
	path := filepath.Join(r.dir, counterFile)

	var number int64
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("failed to read counter: %w", err)
		}
	} else {
		number, err = strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse counter: %w", err)
		}
	}

	number++
	if err := os.WriteFile(path, []byte(strconv.FormatInt(number, 10)+"\n"), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write counter: %w", err)
	}
	return number, nil
}

func (r *repository) Compact() error {
	names, err := r.FindAll()
	if err != nil {
		return err
	}
	// Only an empty record listing triggers compaction.
	if len(names) > 0 {
		return nil
	}
	for _, file := range []string{counterFile, currentFile} {
		if err := os.Remove(filepath.Join(r.dir, file)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", file, err)
		}
	}
	return nil
}

func (r *repository) statePath(name string) string {
	return filepath.Join(r.dir, name+stateSuffix)
}
