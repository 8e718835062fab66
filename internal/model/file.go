package model

import "time"

// File is a stored binary blob.
type File struct {
	ID        string    `json:"id" db:"id"`
	FileName  string    `json:"file_name" db:"file_name"`
	FilePath  string    `json:"file_path" db:"file_path"`
	FileType  string    `json:"file_type" db:"file_type"`
	FileSize  int64     `json:"file_size" db:"file_size"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Attachment links a file to an owning record.
type Attachment struct {
	ID          string    `json:"id" db:"id"`
	FileID      string    `json:"file_id" db:"file_id"`
	ObjectModel string    `json:"object_model" db:"object_model"`
	ObjectID    string    `json:"object_id" db:"object_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// MessageModel is the object model name used when attaching files to
// messages.
const MessageModel = "message"
