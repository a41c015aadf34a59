package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SourceTypePDF = "pdf"
	SourceTypeURL = "url"
)

// Document is the single active document of a session. file_id is stable:
// derived from the upload UUID for PDFs and from a URL hash for pages.
type Document struct {
	FileID           string `gorm:"column:file_id;primaryKey" json:"file_id"`
	OriginalFilename string `gorm:"column:original_filename;not null" json:"original_filename"`
	SourceType       string `gorm:"column:source_type;not null;check:source_type IN ('pdf','url')" json:"source_type"`
	SourcePath       string `gorm:"column:source_path" json:"source_path"`
	FileSize         int64  `gorm:"column:file_size" json:"file_size"`
	PublicURL        string `gorm:"column:public_url" json:"public_url"`

	// SHA-256 over the normalized text, used for idempotent re-upload.
	ContentHash string         `gorm:"column:content_hash;not null;index" json:"content_hash"`
	Metadata    datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Document) TableName() string { return "documents" }

// Chunk is one ordered slice of a document's normalized text. (file_id,
// chunk_index) is unique and the index sequence is contiguous from 0.
type Chunk struct {
	ChunkID  uuid.UUID `gorm:"type:uuid;column:chunk_id;primaryKey" json:"chunk_id"`
	FileID   string    `gorm:"column:file_id;not null;index;uniqueIndex:uq_chunks_file_index,priority:1" json:"file_id"`
	Document *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:FileID;references:FileID" json:"document,omitempty"`

	ChunkIndex    int            `gorm:"column:chunk_index;not null;uniqueIndex:uq_chunks_file_index,priority:2" json:"chunk_index"`
	Content       string         `gorm:"column:content;type:text;not null" json:"content"`
	ChunkMetadata datatypes.JSON `gorm:"type:jsonb;column:chunk_metadata" json:"chunk_metadata"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Chunk) TableName() string { return "chunks" }

// Embedding is the zero-or-one vector of a chunk. Absence means "not yet
// embedded", never an error state.
type Embedding struct {
	ChunkID uuid.UUID `gorm:"type:uuid;column:chunk_id;primaryKey" json:"chunk_id"`
	Chunk   *Chunk    `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChunkID;references:ChunkID" json:"chunk,omitempty"`

	Vector    datatypes.JSON `gorm:"type:jsonb;column:vector;not null" json:"vector"`
	ModelName string         `gorm:"column:model_name;not null" json:"model_name"`
	Dimension int            `gorm:"column:dimension;not null" json:"dimension"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Embedding) TableName() string { return "embeddings" }
