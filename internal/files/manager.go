// Package files stores attachment content on an afero filesystem and
// records it through the store.
package files

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/nhle/threadmail/internal/model"
)

// Repository is the part of the store that tracks files. Passing it per
// call lets uploads join the caller's transaction.
type Repository interface {
	CreateFile(ctx context.Context, f *model.File) error
	CreateAttachment(ctx context.Context, a *model.Attachment) error
	GetAttachedFiles(ctx context.Context, objectModel, objectID string) ([]model.File, error)
}

// Manager manages file content under a base directory.
type Manager struct {
	fs      afero.Fs
	baseDir string
	mu      sync.RWMutex
}

// NewManager creates the base directory on fs if needed.
func NewManager(fs afero.Fs, baseDir string) (*Manager, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("files directory cannot be empty")
	}
	if err := fs.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating files directory %s: %w", baseDir, err)
	}
	return &Manager{fs: fs, baseDir: baseDir}, nil
}

// Upload writes r to storage and records it as a file named name. An empty
// mimeType is guessed from the extension.
func (m *Manager) Upload(
	ctx context.Context,
	repo Repository,
	r io.Reader,
	name, mimeType string,
) (*model.File, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "attachment"
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(name))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	id := uuid.New().String()
	relPath := filepath.Join(id[:2], id+strings.ToLower(filepath.Ext(name)))

	size, err := m.write(relPath, r)
	if err != nil {
		return nil, err
	}

	f := &model.File{
		ID:       id,
		FileName: name,
		FilePath: relPath,
		FileType: mimeType,
		FileSize: size,
	}
	if err := repo.CreateFile(ctx, f); err != nil {
		_ = m.Remove(f)
		return nil, err
	}
	return f, nil
}

// write stores r at relPath through a temp file and rename.
func (m *Manager) write(relPath string, r io.Reader) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Join(m.baseDir, filepath.Dir(relPath))
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(m.fs, dir, ".tmp_*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		_ = m.fs.Remove(tmpPath)
		return 0, fmt.Errorf("writing file data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = m.fs.Remove(tmpPath)
		return 0, fmt.Errorf("closing temp file: %w", err)
	}

	if err := m.fs.Rename(tmpPath, filepath.Join(m.baseDir, relPath)); err != nil {
		_ = m.fs.Remove(tmpPath)
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}
	return written, nil
}

// Attach links f to the record identified by objectModel and objectID.
func (m *Manager) Attach(
	ctx context.Context,
	repo Repository,
	f *model.File,
	objectModel, objectID string,
) (*model.Attachment, error) {
	a := &model.Attachment{
		FileID:      f.ID,
		ObjectModel: objectModel,
		ObjectID:    objectID,
	}
	if err := repo.CreateAttachment(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// AttachedFiles lists the files linked to a record.
func (m *Manager) AttachedFiles(
	ctx context.Context,
	repo Repository,
	objectModel, objectID string,
) ([]model.File, error) {
	return repo.GetAttachedFiles(ctx, objectModel, objectID)
}

// Path resolves the storage path of f.
func (m *Manager) Path(f *model.File) (string, error) {
	if f.FilePath == "" || strings.Contains(f.FilePath, "..") || filepath.IsAbs(f.FilePath) {
		return "", fmt.Errorf("invalid file path %q", f.FilePath)
	}
	return filepath.Join(m.baseDir, f.FilePath), nil
}

// Open opens the content of f for reading.
func (m *Manager) Open(f *model.File) (io.ReadCloser, error) {
	path, err := m.Path(f)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	file, err := m.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file %s: %w", f.FileName, err)
	}
	return file, nil
}

// Remove deletes the content of f. A missing file is not an error.
func (m *Manager) Remove(f *model.File) error {
	path, err := m.Path(f)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fs.Remove(path); err != nil {
		if exists, _ := afero.Exists(m.fs, path); exists {
			return fmt.Errorf("removing file %s: %w", f.FileName, err)
		}
	}
	return nil
}
