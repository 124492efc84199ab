package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/models"
)

// FS implements Provider on a local directory laid out as root/bucket/folder/name.
type FS struct {
	root    string // absolute path
	baseURL string // public base URL, objects resolve to baseURL/bucket/folder/name
	allowed map[string]bool
}

// FSOption configures an FS provider.
type FSOption func(*FS)

// WithPublicBaseURL sets the prefix of public locators.
func WithPublicBaseURL(u string) FSOption {
	return func(f *FS) { f.baseURL = strings.TrimRight(u, "/") }
}

// WithAllowedExtensions restricts writable extensions. Empty allows all.
func WithAllowedExtensions(exts []string) FSOption {
	return func(f *FS) {
		if len(exts) == 0 {
			f.allowed = nil
			return
		}
		f.allowed = make(map[string]bool, len(exts))
		for _, e := range exts {
			f.allowed[strings.TrimPrefix(strings.ToLower(e), ".")] = true
		}
	}
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...FSOption) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	f := &FS{root: abs, baseURL: "/files"}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute store directory.
func (f *FS) Root() string { return f.root }

// safePath resolves bucket/folder/name under root and rejects any result
// that escapes it.
func (f *FS) safePath(parts ...string) (string, error) {
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
			return "", fmt.Errorf("storage: invalid path segment %q", p)
		}
	}
	abs := filepath.Join(append([]string{f.root}, parts...)...)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes store root: %s", strings.Join(parts, "/"))
	}
	return abs, nil
}

// List returns the regular files directly inside the partition directory.
func (f *FS) List(_ context.Context, p models.Partition) ([]ObjectInfo, error) {
	dir, err := f.safePath(p.Bucket, p.Folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list %s: %w", p, err)
	}
	out := make([]ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		out = append(out, ObjectInfo{
			Name:        e.Name(),
			Size:        info.Size(),
			ContentType: ContentType(e.Name()),
			CreatedAt:   info.ModTime(),
			UpdatedAt:   info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns the raw bytes of an object.
func (f *FS) Get(_ context.Context, p models.Partition, name string) ([]byte, error) {
	abs, err := f.safePath(p.Bucket, p.Folder, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.New(apperr.KindNotFound, "get", p.QualifiedPath(name), "")
		}
		return nil, fmt.Errorf("storage: read %s: %w", p.QualifiedPath(name), err)
	}
	return data, nil
}

const tmpPrefix = ".kbsync-tmp-"

// Put writes atomically: tmp file → fsync → rename (overwrite) or link
// (create-only, fails if the target exists).
func (f *FS) Put(_ context.Context, p models.Partition, name string, data []byte, opts PutOptions) (PutResult, error) {
	qualified := p.QualifiedPath(name)
	if f.allowed != nil && !f.allowed[models.Ext(name)] {
		return PutResult{}, apperr.New(apperr.KindUnsupportedMedia, "put", qualified,
			fmt.Sprintf("mime type %s is not supported", ContentType(name)))
	}
	abs, err := f.safePath(p.Bucket, p.Folder, name)
	if err != nil {
		return PutResult{}, err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return PutResult{}, fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return PutResult{}, fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return PutResult{}, fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return PutResult{}, fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return PutResult{}, fmt.Errorf("storage: close temp: %w", err)
	}

	if opts.Overwrite {
		if err := os.Rename(tmpName, abs); err != nil {
			return PutResult{}, fmt.Errorf("storage: rename: %w", err)
		}
	} else if err := os.Link(tmpName, abs); err != nil {
		if errors.Is(err, os.ErrExist) {
			return PutResult{}, apperr.New(apperr.KindConflict, "put", qualified, "the resource already exists")
		}
		return PutResult{}, fmt.Errorf("storage: link: %w", err)
	}

	updated := time.Now()
	if info, err := os.Stat(abs); err == nil {
		updated = info.ModTime()
	}
	return PutResult{Locator: f.PublicURL(p, name), UpdatedAt: updated}, nil
}

// Remove deletes an object.
func (f *FS) Remove(_ context.Context, p models.Partition, name string) error {
	abs, err := f.safePath(p.Bucket, p.Folder, name)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.New(apperr.KindNotFound, "remove", p.QualifiedPath(name), "")
		}
		return fmt.Errorf("storage: delete %s: %w", p.QualifiedPath(name), err)
	}
	return nil
}

// PublicURL returns baseURL/bucket/folder/name with each segment escaped.
func (f *FS) PublicURL(p models.Partition, name string) string {
	return f.baseURL + "/" + url.PathEscape(p.Bucket) + "/" + url.PathEscape(p.Folder) + "/" + url.PathEscape(name)
}
