package settings

import (
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/fsutil"
)

// FileStore is a Store persisted as a YAML document. Every Set and Delete is
// written through to disk.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

type fileDocument struct {
	Values map[string]string `yaml:"values"`
}

// OpenFileStore loads the store at path. A missing file yields an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errutils.Wrap(errutils.ErrInvalidValue, "settings file path must not be empty")
	}
	fs := &FileStore{path: filepath.Clean(path), values: map[string]string{}}

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, errutils.Wrapf(err, "failed to read settings file %s", fs.path)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errutils.Wrapf(errutils.ErrParse, "settings file %s: %v", fs.path, err)
	}
	if doc.Values != nil {
		fs.values = doc.Values
	}
	return fs, nil
}

// Path returns the file backing the store.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *FileStore) Set(key, value string) error {
	if key == "" {
		return errutils.Wrap(errutils.ErrInvalidValue, "settings key must not be empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	old, existed := f.values[key]
	f.values[key] = value
	if err := f.saveLocked(); err != nil {
		if existed {
			f.values[key] = old
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *FileStore) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, existed := f.values[key]
	if !existed {
		return nil
	}
	delete(f.values, key)
	if err := f.saveLocked(); err != nil {
		f.values[key] = old
		return err
	}
	return nil
}

func (f *FileStore) Keys() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (f *FileStore) saveLocked() error {
	data, err := yaml.Marshal(fileDocument{Values: f.values})
	if err != nil {
		return errutils.Wrap(err, "failed to encode settings")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), fsutil.DirModeDefault); err != nil {
		return errutils.Wrapf(err, "failed to create settings directory")
	}
	return fsutil.WriteFileAtomic(f.path, data, fsutil.FileModeSecure)
}
