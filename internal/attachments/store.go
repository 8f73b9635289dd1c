// Package attachments stores files attached to inspection results. Objects
// are named by a random prefix plus the uploaded base name, and backends are
// interchangeable: local filesystem, S3 (or S3-compatible) and GCS.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned by Get and Delete when no object exists for a ref.
var ErrNotFound = errors.New("attachment not found")

// Store abstracts blob storage for attachments.
type Store interface {
	// Put stores data under a new object name derived from name and returns
	// the reference to read it back with.
	Put(ctx context.Context, name string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// File is a named blob to be stored.
type File struct {
	Name string
	Data []byte
}

// ObjectName returns the storage name for an uploaded file: a random hex
// prefix, an underscore and the file's base name.
func ObjectName(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || base == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + base, nil
}

// BaseName returns the original file name of a stored object.
func BaseName(ref string) string {
	if _, rest, ok := strings.Cut(ref, "_"); ok {
		return rest
	}
	return ref
}

// SaveAll stores files concurrently and returns their refs in input order.
// On failure, files already stored are removed.
func SaveAll(ctx context.Context, s Store, files []File) ([]string, error) {
	refs := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, f := range files {
		g.Go(func() error {
			ref, err := s.Put(gctx, f.Name, f.Data)
			if err != nil {
				return fmt.Errorf("store %s: %w", f.Name, err)
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		RemoveAll(context.WithoutCancel(ctx), s, refs)
		return nil, err
	}
	return refs, nil
}

// RemoveAll deletes stored objects, ignoring empty refs. Failures are
// returned joined.
func RemoveAll(ctx context.Context, s Store, refs []string) error {
	var errs []error
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := s.Delete(ctx, ref); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Local implements Store using the local filesystem.
// Useful for development and testing.
type Local struct {
	BaseDir string
}

// NewLocal creates a Local store rooted at the given directory.
func NewLocal(baseDir string) *Local {
	return &Local{BaseDir: baseDir}
}

func (s *Local) path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) {
		return "", fmt.Errorf("invalid attachment ref %q", ref)
	}
	return filepath.Join(s.BaseDir, ref), nil
}

// Put writes data to a new file under BaseDir.
func (s *Local) Put(ctx context.Context, name string, data []byte) (string, error) {
	ref, err := ObjectName(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.BaseDir, 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.BaseDir, ref), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", ref, err)
	}
	return ref, nil
}

// Get reads a stored file.
func (s *Local) Get(ctx context.Context, ref string) ([]byte, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return data, err
}

// Delete removes a stored file.
func (s *Local) Delete(ctx context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return err
}
