package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/library"
)

type documentRepository struct {
	db *sqlx.DB
}

var _ library.Repository = (*documentRepository)(nil) // interface compliance check

// columns the API may order document listings by
var documentSortable = map[string]bool{
	"title":       true,
	"filename":    true,
	"size_bytes":  true,
	"index_state": true,
	"uploaded_at": true,
	"indexed_at":  true,
}

func NewDocumentRepository(db *sqlx.DB) *documentRepository {
	return &documentRepository{db: db}
}

type documentRow struct {
	ID          string      `db:"id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	Filename    string      `db:"filename"`
	ContentType string      `db:"content_type"`
	SizeBytes   int64       `db:"size_bytes"`
	StorageKey  string      `db:"storage_key"`
	OwnerID     null.String `db:"owner_id"`
	CourseID    null.String `db:"course_id"`
	IndexState  string      `db:"index_state"`
	IndexError  null.String `db:"index_error"`
	AIFileID    null.String `db:"ai_file_id"`
	AIFileName  null.String `db:"ai_file_name"`
	UploadedAt  time.Time   `db:"uploaded_at"`
	IndexedAt   null.Time   `db:"indexed_at"`
}

func (repo documentRepository) row(doc library.Document) documentRow {
	return documentRow{
		ID:          doc.ID,
		Title:       doc.Title,
		Description: null.NewString(doc.Description, doc.Description != ""),
		Filename:    doc.Filename,
		ContentType: doc.ContentType,
		SizeBytes:   doc.SizeBytes,
		StorageKey:  doc.StorageKey,
		OwnerID:     null.NewString(doc.OwnerID, doc.OwnerID != ""),
		CourseID:    null.NewString(doc.CourseID, doc.CourseID != ""),
		IndexState:  doc.IndexState,
		IndexError:  null.NewString(doc.IndexError, doc.IndexError != ""),
		AIFileID:    null.NewString(doc.AIFileID, doc.AIFileID != ""),
		AIFileName:  null.NewString(doc.AIFileName, doc.AIFileName != ""),
		UploadedAt:  doc.UploadedAt.UTC(),
		IndexedAt:   null.NewTime(doc.IndexedAt.UTC(), !doc.IndexedAt.IsZero()),
	}
}

func (repo documentRepository) unrow(row documentRow) library.Document {
	return library.Document{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description.String,
		Filename:    row.Filename,
		ContentType: row.ContentType,
		SizeBytes:   row.SizeBytes,
		StorageKey:  row.StorageKey,
		OwnerID:     row.OwnerID.String,
		CourseID:    row.CourseID.String,
		IndexState:  row.IndexState,
		IndexError:  row.IndexError.String,
		AIFileID:    row.AIFileID.String,
		AIFileName:  row.AIFileName.String,
		UploadedAt:  row.UploadedAt,
		IndexedAt:   row.IndexedAt.Time,
	}
}

func (repo documentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return library.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo documentRepository) CreateDocument(ctx context.Context, doc library.Document) (library.Document, error) {
	doc.ID = uuid.New().String()
	row := repo.row(doc)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO library_document (id, title, description, filename, content_type, size_bytes, storage_key,
		                              owner_id, course_id, index_state, index_error, ai_file_id, ai_file_name,
		                              uploaded_at, indexed_at)
		VALUES (:id, :title, :description, :filename, :content_type, :size_bytes, :storage_key,
		        :owner_id, :course_id, :index_state, :index_error, :ai_file_id, :ai_file_name,
		        :uploaded_at, :indexed_at)`,
		row)
	if err != nil {
		return library.Document{}, errors.Wrap(err, "inserting document")
	}
	return repo.unrow(row), nil
}

func (repo documentRepository) GetDocument(ctx context.Context, id string) (library.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return library.Document{}, library.ErrNotFound
	}
	var row documentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM library_document WHERE id = $1`, id); err != nil {
		return library.Document{}, repo.trapNoRowsErr(err, "finding document")
	}
	return repo.unrow(row), nil
}

func (repo documentRepository) FilterDocuments(ctx context.Context, filter library.QueryFilter, ordering []core.DBOrdering) ([]library.Document, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		val := arg("%" + filter.Search + "%")
		conds = append(conds, fmt.Sprintf("(title ILIKE %[1]s OR filename ILIKE %[1]s)", val))
	}
	if filter.CourseID != "" {
		conds = append(conds, "course_id = "+arg(filter.CourseID))
	}
	if filter.OwnerID != "" {
		conds = append(conds, "owner_id = "+arg(filter.OwnerID))
	}
	if filter.IndexState != "" {
		conds = append(conds, "index_state = "+arg(filter.IndexState))
	}

	query := `SELECT * FROM library_document`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	clause, err := orderBy(ordering, documentSortable, "uploaded_at DESC")
	if err != nil {
		return nil, err
	}
	query += clause

	var rows []documentRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}

	docs := make([]library.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, repo.unrow(row))
	}
	return docs, nil
}

func (repo documentRepository) UpdateDocument(ctx context.Context, doc library.Document) (library.Document, error) {
	row := repo.row(doc)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE library_document
		SET title = :title, description = :description, course_id = :course_id,
		    index_state = :index_state, index_error = :index_error,
		    ai_file_id = :ai_file_id, ai_file_name = :ai_file_name, indexed_at = :indexed_at
		WHERE id = :id`,
		row)
	if err != nil {
		return library.Document{}, errors.Wrap(err, "updating document")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return library.Document{}, library.ErrNotFound
	}
	return repo.unrow(row), nil
}

func (repo documentRepository) DeleteDocumentsByID(ctx context.Context, ids ...string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM library_document WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting documents")
}
