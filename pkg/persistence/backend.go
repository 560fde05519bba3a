package persistence

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// StorageKey is the durable record holding the serialized conversations.
const StorageKey = "chatty-conversations"

// Backend is the opaque key-value persistence capability. Load returns
// (nil, nil) when the key has never been written. Save overwrites wholesale;
// last write wins, no transactional guarantees.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// FileBackend stores each key as a JSON file under a directory.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

var _ Backend = (*FileBackend)(nil)

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, key+".json")
}

func (b *FileBackend) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read %s", b.path(key))
	}
	return data, nil
}

func (b *FileBackend) Save(_ context.Context, key string, data []byte) error {
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", b.dir)
	}
	if err := os.WriteFile(b.path(key), data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", b.path(key))
	}
	return nil
}

// MemoryBackend keeps records in memory, for tests.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: map[string][]byte{}}
}

var _ Backend = (*MemoryBackend)(nil)

func (b *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.records[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBackend) Save(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[key] = append([]byte(nil), data...)
	return nil
}
