package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/threadmail/internal/model"
)

// CreateFile inserts a stored file record.
func (s *SQLStore) CreateFile(ctx context.Context, f *model.File) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedBy == "" {
		f.CreatedBy = ActorFromContext(ctx)
	}
	f.CreatedAt = time.Now().UTC()

	_, err := s.exec(ctx, `
		INSERT INTO files (id, file_name, file_path, file_type, file_size, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.FileName, f.FilePath, f.FileType, f.FileSize, f.CreatedBy, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", f.FileName, err)
	}
	return nil
}

// GetFile retrieves a file record by ID.
func (s *SQLStore) GetFile(ctx context.Context, id string) (*model.File, error) {
	var f model.File
	if err := s.get(ctx, &f, "SELECT * FROM files WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("getting file %s: %w", id, err)
	}
	return &f, nil
}

// CreateAttachment links a file to an owning record.
func (s *SQLStore) CreateAttachment(ctx context.Context, a *model.Attachment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.exec(ctx, `
		INSERT INTO attachments (id, file_id, object_model, object_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.FileID, a.ObjectModel, a.ObjectID, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("attaching file %s to %s/%s: %w", a.FileID, a.ObjectModel, a.ObjectID, err)
	}
	return nil
}

// GetAttachedFiles retrieves the files attached to a record in attachment
// order.
func (s *SQLStore) GetAttachedFiles(
	ctx context.Context,
	objectModel, objectID string,
) ([]model.File, error) {
	var files []model.File
	err := s.list(ctx, &files, `
		SELECT f.* FROM files f
		JOIN attachments a ON a.file_id = f.id
		WHERE a.object_model = ? AND a.object_id = ?
		ORDER BY a.created_at, a.id`, objectModel, objectID)
	if err != nil {
		return nil, fmt.Errorf("querying files of %s/%s: %w", objectModel, objectID, err)
	}
	return files, nil
}
