package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const tmpSuffix = ".tmp"

// FilesystemStore keeps one file per key: {dir}/{key}.{ext}. The directory is
// created lazily on the first write.
type FilesystemStore struct {
	dir string
	ext string
}

var _ Store = (*FilesystemStore)(nil)

func NewFilesystemStore(dir, ext string) *FilesystemStore {
	return &FilesystemStore{
		dir: dir,
		ext: strings.TrimPrefix(ext, "."),
	}
}

func (c *FilesystemStore) Dir() string {
	return c.dir
}

func (c *FilesystemStore) Get(ctx context.Context, key string) (TileCacheValue, Entry, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, Entry{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Entry{}, false, err
	}

	f, err := os.Open(c.keyToPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Entry{}, false, nil
		}
		return nil, Entry{}, false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, Entry{}, false, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, Entry{}, false, err
	}

	return content, Entry{Key: key, Size: int64(len(content)), ModTime: info.ModTime()}, true, nil
}

// Set writes to a temp file next to the target and renames it into place, so
// readers never observe a partial payload.
func (c *FilesystemStore) Set(ctx context.Context, key string, v TileCacheValue) error {
	if err := validateKey(key); err != nil {
		return err
	}

	path := c.keyToPath(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*"+tmpSuffix)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(v)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (c *FilesystemStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := os.Remove(c.keyToPath(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List walks the tree and reports every payload file. Leftover temp files and
// foreign files are ignored.
func (c *FilesystemStore) List(ctx context.Context) ([]Entry, error) {
	suffix := "." + c.ext
	var entries []Entry

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == c.dir {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, suffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Key:     filepath.ToSlash(strings.TrimSuffix(rel, suffix)),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Clear removes everything below the root; the root itself survives.
func (c *FilesystemStore) Clear(ctx context.Context) error {
	children, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.RemoveAll(filepath.Join(c.dir, child.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (c *FilesystemStore) keyToPath(key string) string {
	return filepath.Join(c.dir, filepath.FromSlash(key)) + "." + c.ext
}
