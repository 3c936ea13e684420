// Package filecache stores downloaded plugin archives on disk, addressed by file name.
package filecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mholt/archives"

	"github.com/glorpus-work/plugdex/internal/logger"
	"github.com/glorpus-work/plugdex/pkg/errutils"
	"github.com/glorpus-work/plugdex/pkg/fetch"
	"github.com/glorpus-work/plugdex/pkg/fsutil"
)

const archiveSuffix = ".zip"

// Cache is a directory of ZIP archives. A file named n lives at
// <root>/<h[0:2]>/<h[2:4]>/<n>, where h is the hex SHA-256 of n.
type Cache struct {
	root    string
	fetcher fetch.Fetcher
}

// Usage summarizes the cache contents.
type Usage struct {
	Files int
	Bytes int64
}

// New creates the cache root if needed.
func New(root string, fetcher fetch.Fetcher) (*Cache, error) {
	if root == "" {
		return nil, errutils.Wrap(errutils.ErrInvalidValue, "cache directory must not be empty")
	}
	if err := os.MkdirAll(root, fsutil.DirModeSecure); err != nil {
		return nil, errutils.Wrapf(errutils.ErrInvalidValue, "failed to create cache directory %q: %v", root, err)
	}
	return &Cache{root: root, fetcher: fetcher}, nil
}

// Root returns the cache directory.
func (c *Cache) Root() string { return c.root }

// Path returns where name is stored, whether or not it exists.
func (c *Cache) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", errutils.Wrapf(errutils.ErrInvalidValue, "invalid cache file name %q", name)
	}
	if !strings.HasSuffix(strings.ToLower(name), archiveSuffix) {
		return "", errutils.Wrapf(errutils.ErrInvalidValue, "cache file %q is not a %s archive", name, archiveSuffix)
	}
	sum := sha256.Sum256([]byte(name))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(c.root, h[0:2], h[2:4], name), nil
}

// Contains reports whether name is cached.
func (c *Cache) Contains(name string) bool {
	p, err := c.Path(name)
	return err == nil && fsutil.IsFile(p)
}

// AddRemoteFile downloads url into the cache under name.
func (c *Cache) AddRemoteFile(ctx context.Context, name, url, authcfg string) error {
	p, err := c.Path(name)
	if err != nil {
		return err
	}
	if fsutil.Exists(p) {
		return errutils.Wrapf(errutils.ErrInvalidValue, "cache file %q already exists", name)
	}
	if c.fetcher == nil {
		return errutils.Wrap(errutils.ErrNotImplemented, "cache has no fetcher")
	}

	logger.Debug("Downloading into cache", logger.Fields{"name": name, "url": url})
	data, err := c.fetcher.Request(ctx, url, authcfg)
	if err != nil {
		return errutils.Wrapf(err, "failed to download %s", name)
	}
	if err := os.MkdirAll(filepath.Dir(p), fsutil.DirModeSecure); err != nil {
		return errutils.Wrapf(errutils.ErrInvalidValue, "failed to create cache directory for %q: %v", name, err)
	}
	return fsutil.WriteFileAtomic(p, data, fsutil.FileModeSecure)
}

func (c *Cache) open(ctx context.Context, name, password string) (fs.FS, func(), error) {
	if password != "" {
		return nil, nil, errutils.Wrap(errutils.ErrNotImplemented, "password protected archives are not supported")
	}
	p, err := c.Path(name)
	if err != nil {
		return nil, nil, err
	}
	if !fsutil.IsFile(p) {
		return nil, nil, fmt.Errorf("%w: cache file %q", errutils.ErrNotFound, name)
	}
	fsys, err := archives.FileSystem(ctx, p, nil)
	if err != nil {
		return nil, nil, errutils.Wrapf(errutils.ErrParse, "failed to open archive %q: %v", name, err)
	}
	closeFn := func() {}
	if closer, ok := fsys.(io.Closer); ok {
		closeFn = func() { _ = closer.Close() }
	}
	return fsys, closeFn, nil
}

// ListEntries returns the file entries of a cached archive in lexical order.
func (c *Cache) ListEntries(ctx context.Context, name string) ([]string, error) {
	fsys, closeFn, err := c.open(ctx, name, "")
	if err != nil {
		return nil, err
	}
	defer closeFn()

	var entries []string
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, errutils.Wrapf(errutils.ErrParse, "failed to list archive %q: %v", name, err)
	}
	slices.Sort(entries)
	return entries, nil
}

// ReadEntry returns the contents of one entry of a cached archive.
func (c *Cache) ReadEntry(ctx context.Context, name, entry, password string) ([]byte, error) {
	fsys, closeFn, err := c.open(ctx, name, password)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	f, err := fsys.Open(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: entry %q in %q", errutils.ErrNotFound, entry, name)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errutils.Wrapf(errutils.ErrParse, "failed to read entry %q in %q: %v", entry, name, err)
	}
	return data, nil
}

// Extract unpacks a cached archive into dest. Entries escaping dest are rejected.
func (c *Cache) Extract(ctx context.Context, name, dest, password string) error {
	fsys, closeFn, err := c.open(ctx, name, password)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := os.MkdirAll(dest, fsutil.DirModeDefault); err != nil {
		return errutils.Wrapf(errutils.ErrInvalidValue, "failed to create %q: %v", dest, err)
	}
	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errutils.Wrapf(errutils.ErrParse, "failed to read archive %q: %v", name, err)
		}
		if path == "." {
			return nil
		}
		if !filepath.IsLocal(filepath.FromSlash(path)) {
			return errutils.Wrapf(errutils.ErrInvalidValue, "archive %q has unsafe entry %q", name, path)
		}
		target := filepath.Join(dest, filepath.FromSlash(path))
		if d.IsDir() {
			return os.MkdirAll(target, fsutil.DirModeDefault)
		}
		if !d.Type().IsRegular() {
			logger.Debug("Skipping non-regular archive entry", logger.Fields{"archive": name, "entry": path})
			return nil
		}
		return extractFile(fsys, path, target)
	})
}

func extractFile(fsys fs.FS, path, target string) error {
	src, err := fsys.Open(path)
	if err != nil {
		return errutils.Wrapf(errutils.ErrParse, "failed to open entry %q: %v", path, err)
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(filepath.Dir(target), fsutil.DirModeDefault); err != nil {
		return errutils.Wrapf(errutils.ErrInvalidValue, "failed to create parent of %q: %v", target, err)
	}
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeDefault)
	if err != nil {
		return errutils.Wrapf(errutils.ErrInvalidValue, "failed to create %q: %v", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return errutils.Wrapf(errutils.ErrParse, "failed to extract %q: %v", path, err)
	}
	return dst.Close()
}

// Clear removes every cached file.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return errutils.Wrapf(errutils.ErrInvalidValue, "failed to read cache directory: %v", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.root, e.Name())); err != nil {
			return errutils.Wrapf(errutils.ErrInvalidValue, "failed to remove %q: %v", e.Name(), err)
		}
	}
	logger.Debug("Cache cleared", logger.Fields{"root": c.root})
	return nil
}

// Usage counts cached files and their total size.
func (c *Cache) Usage() (Usage, error) {
	var u Usage
	err := filepath.WalkDir(c.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			u.Files++
			u.Bytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return Usage{}, errutils.Wrapf(errutils.ErrInvalidValue, "failed to scan cache: %v", err)
	}
	return u, nil
}
