// Package blob stores file content under a public and a private root.
// Storage uris have the form public://ab/cd/name.ext.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/kailas-cloud/resdex/internal/domain/media"
)

// ErrNotFound is returned when no content exists at a uri.
var ErrNotFound = errors.New("blob: not found")

// maxRenameAttempts bounds the name_N search on collisions.
const maxRenameAttempts = 10000

// Mode controls what happens when the destination already exists.
type Mode int

const (
	// Rename picks name_0.ext, name_1.ext, ... and never overwrites.
	Rename Mode = iota
	// Replace overwrites existing content.
	Replace
)

// Config points the two schemes at directories on the filesystem.
type Config struct {
	PublicRoot  string
	PrivateRoot string
}

// Store reads and writes content by storage uri.
type Store struct {
	fs    afero.Fs
	roots map[media.Scheme]string
}

// New creates a Store on fs.
func New(fs afero.Fs, cfg Config) *Store {
	return &Store{
		fs: fs,
		roots: map[media.Scheme]string{
			media.SchemePublic:  cfg.PublicRoot,
			media.SchemePrivate: cfg.PrivateRoot,
		},
	}
}

// HealthCheck makes sure both roots exist and are directories.
func (s *Store) HealthCheck(_ context.Context) error {
	for scheme, root := range s.roots {
		if err := s.fs.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("%s root %s: %w", scheme, root, err)
		}
		ok, err := afero.IsDir(s.fs, root)
		if err != nil {
			return fmt.Errorf("%s root %s: %w", scheme, root, err)
		}
		if !ok {
			return fmt.Errorf("%s root %s is not a directory", scheme, root)
		}
	}
	return nil
}

func (s *Store) path(uri string) (string, error) {
	scheme, rel, err := media.ParseURI(uri)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.roots[scheme], filepath.FromSlash(rel)), nil
}

// Exists reports whether content is stored at uri.
func (s *Store) Exists(uri string) (bool, error) {
	p, err := s.path(uri)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(s.fs, p)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", uri, err)
	}
	return ok, nil
}

// Read returns the content stored at uri.
func (s *Store) Read(uri string) ([]byte, error) {
	p, err := s.path(uri)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	return data, nil
}

// Open streams the content stored at uri.
func (s *Store) Open(uri string) (afero.File, error) {
	p, err := s.path(uri)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	return f, nil
}

// Write stores data at uri and returns the uri actually written,
// which differs from the input when Rename resolved a collision.
func (s *Store) Write(uri string, data []byte, mode Mode) (string, error) {
	target, err := s.resolve(uri, mode)
	if err != nil {
		return "", err
	}
	p, err := s.path(target)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("prepare %s: %w", target, err)
	}
	if err := afero.WriteFile(s.fs, p, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	return target, nil
}

// Copy duplicates the content at src to dst.
func (s *Store) Copy(src, dst string, mode Mode) (string, error) {
	data, err := s.Read(src)
	if err != nil {
		return "", err
	}
	return s.Write(dst, data, mode)
}

// Move relocates content from src to dst, possibly across schemes.
func (s *Store) Move(src, dst string, mode Mode) (string, error) {
	target, err := s.resolve(dst, mode)
	if err != nil {
		return "", err
	}
	from, err := s.path(src)
	if err != nil {
		return "", err
	}
	to, err := s.path(target)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return "", fmt.Errorf("prepare %s: %w", target, err)
	}
	if err := s.fs.Rename(from, to); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, src)
		}
		return "", fmt.Errorf("move %s to %s: %w", src, target, err)
	}
	return target, nil
}

// Delete removes the content at uri. Missing content is not an error.
func (s *Store) Delete(uri string) error {
	p, err := s.path(uri)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", uri, err)
	}
	return nil
}

// Hash returns the hex sha256 of the content at uri.
func (s *Store) Hash(uri string) (string, error) {
	f, err := s.Open(uri)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", uri, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Store) resolve(uri string, mode Mode) (string, error) {
	if mode == Replace {
		return uri, nil
	}
	exists, err := s.Exists(uri)
	if err != nil {
		return "", err
	}
	if !exists {
		return uri, nil
	}
	for i := 0; i < maxRenameAttempts; i++ {
		candidate := Numbered(uri, i)
		exists, err := s.Exists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s", uri)
}

// Numbered inserts _n before the extension: a/b/report.pdf → a/b/report_3.pdf.
func Numbered(uri string, n int) string {
	dir, name := path.Split(uri)
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return dir + base + "_" + strconv.Itoa(n) + ext
}

// WithScheme returns uri moved to scheme, keeping the relative path.
func WithScheme(uri string, scheme media.Scheme) (string, error) {
	_, rel, err := media.ParseURI(uri)
	if err != nil {
		return "", err
	}
	return media.URI(scheme, rel), nil
}
