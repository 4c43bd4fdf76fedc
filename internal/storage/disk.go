package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// Disk stores files under a root directory. Writes go to a temporary file in
// the destination directory and are renamed into place once complete.
type Disk struct {
	root string
}

func NewDisk(root string) *Disk {
	return &Disk{root: root}
}

func (d *Disk) Root() string { return d.root }

// Path returns the filesystem path for key.
func (d *Disk) Path(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(k)), nil
}

func (d *Disk) Save(ctx context.Context, key, _ string, r io.Reader) error {
	target, err := d.Path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	discard := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		return discard(fmt.Errorf("write upload: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return discard(fmt.Errorf("sync upload: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return discard(fmt.Errorf("close upload: %w", err))
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return discard(fmt.Errorf("chmod upload: %w", err))
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return discard(fmt.Errorf("rename upload: %w", err))
	}
	return nil
}

// Remove deletes the file for key. A missing file is not an error.
func (d *Disk) Remove(_ context.Context, key string) error {
	p, err := d.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

// ServeHTTP serves stored files relative to the request path. Mount it behind
// http.StripPrefix. Directories and hidden files are reported as not found.
func (d *Disk) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, err := cleanKey(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	if ct, ok := ImageContentType(path.Ext(key)); ok {
		h.Set("Content-Type", ct)
	} else {
		h.Set("Content-Type", "application/octet-stream")
		h.Set("Content-Disposition", "attachment")
	}
	http.FileServer(filesOnly{http.Dir(d.root)}).ServeHTTP(w, r)
}

type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
