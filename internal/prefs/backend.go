package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/and161185/medalert/internal/crypto/clientcrypto"
)

var (
	// ErrNoEntry is returned by a Backend for an entry that was never written or was deleted.
	ErrNoEntry = errors.New("prefs: no entry")
	// ErrCorrupt is returned for an entry that exists but cannot be opened.
	ErrCorrupt = errors.New("prefs: corrupt entry")
)

// Backend is the durable key-value layer under the Store. Each Put replaces one entry
// as a whole: readers see the old bytes or the new ones, never a mix.
type Backend interface {
	// Get returns the entry bytes or ErrNoEntry.
	Get(name string) ([]byte, error)
	// Put writes the entry durably before returning.
	Put(name string, data []byte) error
	// Delete removes the entry; a missing entry is not an error.
	Delete(name string) error
}

// Memory is an in-process Backend, used by tests and ephemeral sessions.
type Memory struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemory() *Memory { return &Memory{m: map[string][]byte{}} }

func (b *Memory) Get(name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.m[name]
	if !ok {
		return nil, ErrNoEntry
	}
	return append([]byte(nil), v...), nil
}

func (b *Memory) Put(name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[name] = append([]byte(nil), data...)
	return nil
}

func (b *Memory) Delete(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.m, name)
	return nil
}

// File keeps each entry as a sealed file "<name>.bin" under dir.
type File struct {
	dir    string
	sealer *clientcrypto.Sealer
}

// NewFile returns a file backend rooted at dir.
func NewFile(dir string, sealer *clientcrypto.Sealer) *File {
	return &File{dir: dir, sealer: sealer}
}

func (b *File) path(name string) string { return filepath.Join(b.dir, name+".bin") }

func (b *File) Get(name string) ([]byte, error) {
	blob, err := os.ReadFile(b.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoEntry
	}
	if err != nil {
		return nil, err
	}
	pt, err := b.sealer.Open(name, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return pt, nil
}

func (b *File) Put(name string, data []byte) error {
	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return err
	}
	blob, err := b.sealer.Seal(name, data)
	if err != nil {
		return fmt.Errorf("seal %s: %w", name, err)
	}
	if err := writeFileAtomic(b.path(name), blob); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (b *File) Delete(name string) error {
	if err := os.Remove(b.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// writeFileAtomic writes via temp file + fsync + rename so readers never see a torn file.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
