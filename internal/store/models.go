package store

import (
	"time"

	"github.com/uptrace/bun"
)

// Version status lifecycle: processing -> ready | error, exactly once
// per ingestion job.
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusError      = "error"
)

const (
	SenderUser   = "user"
	SenderSystem = "system"
)

type Project struct {
	bun.BaseModel `bun:"table:projects,alias:p"`

	ProjectID    string    `bun:"project_id,pk" json:"project_id"`
	ProjectName  string    `bun:"project_name" json:"project_name"`
	CreationTime time.Time `bun:"creation_time,nullzero,notnull,default:current_timestamp" json:"creation_time"`
}

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	DocBaseID        int64     `bun:"doc_base_id,pk,autoincrement" json:"doc_base_id"`
	ProjectID        string    `bun:"project_id,notnull" json:"project_id"`
	OriginalFilename string    `bun:"original_filename,notnull" json:"original_filename"`
	CreationTime     time.Time `bun:"creation_time,nullzero,notnull,default:current_timestamp" json:"creation_time"`
}

type DocumentVersion struct {
	bun.BaseModel `bun:"table:document_versions,alias:v"`

	VersionID      int64     `bun:"version_id,pk,autoincrement" json:"version_id"`
	DocBaseID      int64     `bun:"doc_base_id,notnull" json:"doc_base_id"`
	VersionNumber  int       `bun:"version_number,notnull" json:"version_number"`
	StoredFilename string    `bun:"stored_filename,notnull" json:"stored_filename"`
	StoredFilepath string    `bun:"stored_filepath,notnull" json:"stored_filepath"`
	UploadTime     time.Time `bun:"upload_time,nullzero,notnull,default:current_timestamp" json:"upload_time"`
	Status         string    `bun:"status,notnull,default:'processing'" json:"status"`
	ErrorMessage   string    `bun:"error_message" json:"error_message,omitempty"`
	IsLatest       bool      `bun:"is_latest,notnull" json:"is_latest"`
	IsDeleted      bool      `bun:"is_deleted,notnull" json:"is_deleted"`
}

type ChatSession struct {
	bun.BaseModel `bun:"table:chat_sessions,alias:s"`

	SessionID      int64     `bun:"session_id,pk,autoincrement" json:"session_id"`
	VersionID      int64     `bun:"version_id,notnull" json:"version_id"`
	StartTime      time.Time `bun:"start_time,nullzero,notnull,default:current_timestamp" json:"start_time"`
	LastUpdateTime time.Time `bun:"last_update_time,nullzero,notnull,default:current_timestamp" json:"last_update_time"`
}

type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	MessageID         int64     `bun:"message_id,pk,autoincrement" json:"message_id"`
	SessionID         int64     `bun:"session_id,notnull" json:"session_id"`
	Sender            string    `bun:"sender,notnull" json:"sender"`
	Text              string    `bun:"text,notnull" json:"text"`
	RetrievedChunkIDs string    `bun:"retrieved_chunk_ids" json:"retrieved_chunk_ids,omitempty"`
	Timestamp         time.Time `bun:"timestamp,nullzero,notnull,default:current_timestamp" json:"timestamp"`
}

type Setting struct {
	bun.BaseModel `bun:"table:settings,alias:st"`

	Key   string `bun:"key,pk" json:"key"`
	Value string `bun:"value,notnull" json:"value"`
}

// DocumentListing is a document joined with its latest version, as
// returned by the document list endpoint.
type DocumentListing struct {
	DocBaseID        int64     `bun:"doc_base_id" json:"doc_base_id"`
	ProjectID        string    `bun:"project_id" json:"project_id"`
	OriginalFilename string    `bun:"original_filename" json:"original_filename"`
	CreationTime     time.Time `bun:"creation_time" json:"creation_time"`
	VersionID        int64     `bun:"version_id" json:"version_id"`
	VersionNumber    int       `bun:"version_number" json:"version_number"`
	Status           string    `bun:"status" json:"status"`
}
