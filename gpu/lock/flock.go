package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileExclusivity implements Exclusivity with advisory file locks on files
// in a shared directory. Every acquisition opens its own file description,
// so two acquisitions in the same process contend like two processes do.
type FileExclusivity struct {
	dir string
}

// NewFileExclusivity uses dir for the lock files, os.TempDir() if empty.
func NewFileExclusivity(dir string) *FileExclusivity {
	if dir == "" {
		dir = os.TempDir()
	}
	return &FileExclusivity{dir: dir}
}

func (e *FileExclusivity) Dir() string {
	return e.dir
}

// Path returns the lock file backing name.
func (e *FileExclusivity) Path(name string) string {
	return filepath.Join(e.dir, name)
}

func (e *FileExclusivity) AcquireExclusive(name string) (Guard, error) {
	f, err := e.open(name)
	if err != nil {
		return nil, err
	}
	if _, err := lockFile(f, true); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: lock %s: %w", ErrLock, f.Name(), err)
	}
	return trackFile(f), nil
}

func (e *FileExclusivity) TryAcquireExclusive(name string) (Guard, bool, error) {
	f, err := e.open(name)
	if err != nil {
		return nil, false, err
	}
	ok, err := lockFile(f, false)
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("%w: lock %s: %w", ErrLock, f.Name(), err)
	}
	if !ok {
		f.Close()
		return nil, false, nil
	}
	return trackFile(f), true, nil
}

func (e *FileExclusivity) open(name string) (*os.File, error) {
	f, err := os.OpenFile(e.Path(name), os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLock, err)
	}
	return f, nil
}

// held file locks, released by onexit when the process is terminated by a
// signal while holding them.
var (
	heldMu sync.Mutex
	held   = make(map[*fileGuard]struct{})
)

type fileGuard struct {
	f    *os.File
	once sync.Once
	err  error
}

func trackFile(f *os.File) *fileGuard {
	g := &fileGuard{f: f}
	heldMu.Lock()
	held[g] = struct{}{}
	heldMu.Unlock()
	return g
}

func releaseHeld() {
	heldMu.Lock()
	guards := make([]*fileGuard, 0, len(held))
	for g := range held {
		guards = append(guards, g)
	}
	heldMu.Unlock()
	for _, g := range guards {
		g.Release()
	}
}

func (g *fileGuard) Release() error {
	g.once.Do(func() {
		heldMu.Lock()
		delete(held, g)
		heldMu.Unlock()
		g.err = errors.Join(unlockFile(g.f), g.f.Close())
	})
	return g.err
}
