package artifact

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FS is a filesystem-backed Client rooted at a single directory. Keys map to
// relative paths under the root, which makes a shared mount or a local
// directory equally usable as the store backend.
type FS struct {
	root string
}

var _ Client = (*FS)(nil)

// NewFS creates (if needed) and wraps the root directory.
func NewFS(root string) (*FS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("artifact root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (f *FS) Root() string {
	return f.root
}

func (f *FS) Fetch(ctx context.Context, key, dest string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	src, err := f.resolve(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return 0, fmt.Errorf("stat %s: %w", key, err)
	}
	written, err := copyFile(src, dest)
	if err != nil {
		return written, fmt.Errorf("fetch %s: %w", key, err)
	}
	if written != info.Size() {
		return written, fmt.Errorf("fetch %s: incomplete transfer (%d of %d bytes)", key, written, info.Size())
	}
	return written, nil
}

func (f *FS) Store(ctx context.Context, key, src string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat source %s: %w", src, err)
	}
	dest, err := f.resolve(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create namespace for %s: %w", key, err)
	}
	written, err := copyFile(src, dest)
	if err != nil {
		return written, fmt.Errorf("store %s: %w", key, err)
	}
	if written != info.Size() {
		return written, fmt.Errorf("store %s: incomplete transfer (%d of %d bytes)", key, written, info.Size())
	}
	return written, nil
}

func (f *FS) StoreBytes(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create namespace for %s: %w", key, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (f *FS) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	target, err := f.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", key, err)
}

// resolve maps a key to an absolute path under the root and rejects keys
// that would escape it.
func (f *FS) resolve(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return filepath.Join(f.root, cleaned), nil
}

func copyFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fs.FileMode(0o644))
	if err != nil {
		return 0, err
	}
	written, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return written, copyErr
	}
	return written, closeErr
}
