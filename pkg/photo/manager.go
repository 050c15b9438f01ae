// Package photo manages candidate photos as files owned by the application.
//
// Only files created by Manager.Persist inside the photos directory are ever
// deleted; remote and content-provider references are treated as read-only.
package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/pkg/logger"

	"github.com/google/uuid"
)

// Source is an image the caller wants to attach to a candidate.
type Source interface {
	Open() (io.ReadCloser, error)
	MIMEType() string
}

// Mirror receives copies of owned photo files. Failures are logged, never fatal.
type Mirror interface {
	Put(ctx context.Context, name, contentType string, body io.ReadSeeker) error
	Remove(ctx context.Context, name string) error
}

type Options struct {
	// MaxDimension > 0 downscales larger JPEG/PNG images before storing.
	MaxDimension int
	Mirror       Mirror
	Logger       *slog.Logger
}

type Manager struct {
	dir          string
	maxDimension int
	mirror       Mirror
	log          *slog.Logger
}

// NewManager prepares dir (created if missing) as the app-private photo directory.
func NewManager(dir string, opts Options) (*Manager, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve photos dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create photos dir: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.Component("photo_manager")
	}

	return &Manager{
		dir:          abs,
		maxDimension: opts.MaxDimension,
		mirror:       opts.Mirror,
		log:          log,
	}, nil
}

// Dir returns the absolute photos directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Persist copies src into the photos directory under a fresh name and returns
// its file URI. The previous photo is deleted only once the new file is in
// place; on failure previousURI is left untouched and ok is false.
func (m *Manager) Persist(ctx context.Context, src Source, previousURI string) (string, bool) {
	ext := ExtensionFor(src.MIMEType())
	name := uuid.NewString() + ext
	target := filepath.Join(m.dir, name)

	if err := m.copyInto(target, src, ext); err != nil {
		m.log.Warn("Failed to persist photo", "error", err, "mime", src.MIMEType())
		return "", false
	}

	if strings.TrimSpace(previousURI) != "" {
		m.DeleteIfLocal(ctx, previousURI)
	}

	if m.mirror != nil {
		m.mirrorPut(ctx, name, target, src.MIMEType())
	}

	return fileURI(target), true
}

func (m *Manager) copyInto(target string, src Source, ext string) (err error) {
	in, err := src.Open()
	if err != nil {
		return fmt.Errorf("%w: open source: %v", domain.ErrAssetIO, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(m.dir, ".upload-*"+ext)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", domain.ErrAssetIO, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var reader io.Reader = in
	if m.maxDimension > 0 && canResize(ext) {
		data, readErr := io.ReadAll(in)
		if readErr != nil {
			return fmt.Errorf("%w: read source: %v", domain.ErrAssetIO, readErr)
		}
		resized, resizeErr := downscale(data, ext, m.maxDimension)
		if resizeErr != nil {
			m.log.Debug("Storing photo without downscale", "error", resizeErr)
			resized = data
		}
		reader = bytes.NewReader(resized)
	}

	if _, err = io.Copy(tmp, reader); err != nil {
		return fmt.Errorf("%w: copy: %v", domain.ErrAssetIO, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", domain.ErrAssetIO, err)
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("%w: rename: %v", domain.ErrAssetIO, err)
	}
	return nil
}

// DeleteIfLocal removes the file behind uri when it is owned by this manager.
// Blank, remote and content references are ignored; errors are swallowed.
func (m *Manager) DeleteIfLocal(ctx context.Context, uri string) {
	path, ok := m.ownedPath(uri)
	if !ok {
		return
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.Warn("Failed to delete photo", "error", err, "path", path)
	}

	if m.mirror != nil {
		if err := m.mirror.Remove(ctx, filepath.Base(path)); err != nil {
			m.log.Warn("Failed to remove mirrored photo", "error", err, "name", filepath.Base(path))
		}
	}
}

// IsLocal reports whether uri points at a file owned by this manager.
func (m *Manager) IsLocal(uri string) bool {
	_, ok := m.ownedPath(uri)
	return ok
}

// Open opens an owned photo for reading.
func (m *Manager) Open(uri string) (*os.File, error) {
	path, ok := m.ownedPath(uri)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a local photo", domain.ErrAssetIO, uri)
	}
	return os.Open(path)
}

func (m *Manager) ownedPath(uri string) (string, bool) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", false
	}

	u, err := url.Parse(uri)
	if err != nil || !strings.EqualFold(u.Scheme, "file") {
		return "", false
	}

	path := filepath.Clean(filepath.FromSlash(u.Path))
	if filepath.Dir(path) != m.dir {
		return "", false
	}
	return path, true
}

func (m *Manager) mirrorPut(ctx context.Context, name, path, contentType string) {
	f, err := os.Open(path)
	if err != nil {
		m.log.Warn("Failed to open photo for mirroring", "error", err, "name", name)
		return
	}
	defer f.Close()

	if err := m.mirror.Put(ctx, name, contentType, f); err != nil {
		m.log.Warn("Failed to mirror photo", "error", err, "name", name)
	}
}

// ExtensionFor picks the stored file extension from the declared MIME type.
func ExtensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func fileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
