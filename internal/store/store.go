package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	"docqa/internal/apperr"
)

// ConnectDB opens the SQLite database file.
func ConnectDB(path string) (*sql.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+path+"?cache=shared&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// between the request path and background ingestion jobs.
	sqldb.SetMaxOpenConns(1)
	return sqldb, nil
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, sqlitedialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// InitDB creates the tables if they do not exist.
func InitDB(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*Project)(nil),
		(*Document)(nil),
		(*DocumentVersion)(nil),
		(*ChatSession)(nil),
		(*Message)(nil),
		(*Setting)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Projects

func CreateProject(ctx context.Context, db *bun.DB, project *Project) error {
	_, err := db.NewInsert().Model(project).Exec(ctx)
	return err
}

func GetProject(ctx context.Context, db *bun.DB, projectID string) (*Project, error) {
	project := new(Project)
	err := db.NewSelect().Model(project).Where("project_id = ?", projectID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "project %s not found", projectID)
	}
	return project, err
}

func ListProjects(ctx context.Context, db *bun.DB) ([]Project, error) {
	var projects []Project
	err := db.NewSelect().Model(&projects).Order("creation_time DESC").Scan(ctx)
	return projects, err
}

// Documents and versions

// FindDocument returns the document with the given filename in the
// project, or nil when the upload is a brand new document.
func FindDocument(ctx context.Context, db *bun.DB, projectID, filename string) (*Document, error) {
	doc := new(Document)
	err := db.NewSelect().Model(doc).
		Where("project_id = ?", projectID).
		Where("original_filename = ?", filename).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func CreateDocument(ctx context.Context, db *bun.DB, doc *Document) error {
	_, err := db.NewInsert().Model(doc).Exec(ctx)
	return err
}

// NextVersionNumber computes the next version number for a document
// and clears the is_latest flag on all previous versions. The
// superseded versions keep their indexes; only the flag flips.
func NextVersionNumber(ctx context.Context, db *bun.DB, docBaseID int64) (int, error) {
	var max sql.NullInt64
	err := db.NewSelect().Model((*DocumentVersion)(nil)).
		ColumnExpr("MAX(version_number)").
		Where("doc_base_id = ?", docBaseID).
		Scan(ctx, &max)
	if err != nil {
		return 0, err
	}
	_, err = db.NewUpdate().Model((*DocumentVersion)(nil)).
		Set("is_latest = ?", false).
		Where("doc_base_id = ?", docBaseID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return int(max.Int64) + 1, nil
}

func CreateVersion(ctx context.Context, db *bun.DB, version *DocumentVersion) error {
	_, err := db.NewInsert().Model(version).Exec(ctx)
	return err
}

func GetVersion(ctx context.Context, db *bun.DB, versionID int64) (*DocumentVersion, error) {
	version := new(DocumentVersion)
	err := db.NewSelect().Model(version).
		Where("version_id = ?", versionID).
		Where("is_deleted = ?", false).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "version %d not found", versionID)
	}
	return version, err
}

// MarkVersionReady transitions processing -> ready. The status guard
// makes the transition happen at most once per job.
func MarkVersionReady(ctx context.Context, db *bun.DB, versionID int64) error {
	_, err := db.NewUpdate().Model((*DocumentVersion)(nil)).
		Set("status = ?", StatusReady).
		Set("error_message = ?", "").
		Where("version_id = ?", versionID).
		Where("status = ?", StatusProcessing).
		Exec(ctx)
	return err
}

// MarkVersionError transitions processing -> error with a detail
// message. Terminal; re-upload is the recovery path.
func MarkVersionError(ctx context.Context, db *bun.DB, versionID int64, message string) error {
	_, err := db.NewUpdate().Model((*DocumentVersion)(nil)).
		Set("status = ?", StatusError).
		Set("error_message = ?", message).
		Where("version_id = ?", versionID).
		Where("status = ?", StatusProcessing).
		Exec(ctx)
	return err
}

// SoftDeleteVersion marks the version deleted. The latest version of a
// document cannot be deleted.
func SoftDeleteVersion(ctx context.Context, db *bun.DB, versionID int64) error {
	version, err := GetVersion(ctx, db, versionID)
	if err != nil {
		return err
	}
	if version.IsLatest {
		return apperr.New(apperr.ValidationError, "cannot delete the latest version")
	}
	_, err = db.NewUpdate().Model((*DocumentVersion)(nil)).
		Set("is_deleted = ?", true).
		Where("version_id = ?", versionID).
		Exec(ctx)
	return err
}

func ListDocuments(ctx context.Context, db *bun.DB, projectID string) ([]DocumentListing, error) {
	var listings []DocumentListing
	err := db.NewSelect().
		TableExpr("documents AS d").
		ColumnExpr("d.doc_base_id, d.project_id, d.original_filename, d.creation_time").
		ColumnExpr("v.version_id, v.version_number, v.status").
		Join("JOIN document_versions AS v ON v.doc_base_id = d.doc_base_id AND v.is_latest AND NOT v.is_deleted").
		Where("d.project_id = ?", projectID).
		Order("d.creation_time DESC").
		Scan(ctx, &listings)
	return listings, err
}

func ListVersions(ctx context.Context, db *bun.DB, docBaseID int64) ([]DocumentVersion, error) {
	var versions []DocumentVersion
	err := db.NewSelect().Model(&versions).
		Where("doc_base_id = ?", docBaseID).
		Where("is_deleted = ?", false).
		Order("version_number DESC").
		Scan(ctx)
	return versions, err
}

// Chat sessions and messages

func CreateChatSession(ctx context.Context, db *bun.DB, session *ChatSession) error {
	_, err := db.NewInsert().Model(session).Exec(ctx)
	return err
}

func GetChatSession(ctx context.Context, db *bun.DB, sessionID int64) (*ChatSession, error) {
	session := new(ChatSession)
	err := db.NewSelect().Model(session).Where("session_id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "session %d not found", sessionID)
	}
	return session, err
}

func SaveMessage(ctx context.Context, db *bun.DB, message *Message) error {
	if _, err := db.NewInsert().Model(message).Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewUpdate().Model((*ChatSession)(nil)).
		Set("last_update_time = ?", time.Now().UTC()).
		Where("session_id = ?", message.SessionID).
		Exec(ctx)
	return err
}

func ListMessages(ctx context.Context, db *bun.DB, sessionID int64) ([]Message, error) {
	var messages []Message
	err := db.NewSelect().Model(&messages).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC", "message_id ASC").
		Scan(ctx)
	return messages, err
}

// Settings

const apiKeySetting = "llm_api_key"

func SetSetting(ctx context.Context, db *bun.DB, key, value string) error {
	setting := &Setting{Key: key, Value: value}
	_, err := db.NewInsert().Model(setting).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return err
}

func GetSetting(ctx context.Context, db *bun.DB, key string) (string, error) {
	setting := new(Setting)
	err := db.NewSelect().Model(setting).Where("key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func SetAPIKey(ctx context.Context, db *bun.DB, value string) error {
	return SetSetting(ctx, db, apiKeySetting, value)
}

func GetAPIKey(ctx context.Context, db *bun.DB) (string, error) {
	return GetSetting(ctx, db, apiKeySetting)
}
