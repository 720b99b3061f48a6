package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/kbworks/docingest/internal/model"
	"github.com/kbworks/docingest/internal/pkg/dbutil"
	"github.com/kbworks/docingest/internal/pkg/errs"
)

type IngestRepo struct {
	db *sql.DB
}

func NewIngestRepo(db *sql.DB) *IngestRepo {
	return &IngestRepo{db: db}
}

func (r *IngestRepo) CourseName(ctx context.Context, courseID string) (string, error) {
	where := map[string]interface{}{"id": courseID}
	sqlStr, args, err := builder.BuildSelect("courses", where, []string{"name"})
	if err != nil {
		return "", errs.Wrap(errs.ErrDatabase, err, "build course query")
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var name string
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&name)
	if err == sql.ErrNoRows {
		return "", errs.Newf(errs.ErrNotFound, "course not found: %s", courseID)
	}
	if err != nil {
		return "", errs.Wrap(errs.ErrDatabase, err, "query course")
	}
	return name, nil
}

// CreateFileWithChunks inserts the file row and its first chunk batch in one
// transaction. The file row only ever exists together with at least one
// chunk; a failure here leaves no trace of the document.
func (r *IngestRepo) CreateFileWithChunks(ctx context.Context, file *model.File, chunks []*model.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "begin tx")
	}
	defer tx.Rollback()
	data := map[string]interface{}{
		"id":        file.ID,
		"course_id": file.CourseID,
		"name":      file.Name,
		"size":      file.Size,
	}
	if file.PageCount != nil {
		data["page_count"] = *file.PageCount
	}
	sqlStr, args, err := builder.BuildInsert("files", []map[string]interface{}{data})
	if err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "build file insert")
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return errs.Wrap(errs.ErrDatabase, err, "file already exists")
		}
		return errs.Wrap(errs.ErrDatabase, err, "insert file")
	}
	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "commit tx")
	}
	return nil
}

// AppendChunks stores a follow-up batch for a file created earlier in the
// same ingestion run.
func (r *IngestRepo) AppendChunks(ctx context.Context, chunks []*model.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "begin tx")
	}
	defer tx.Rollback()
	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "commit tx")
	}
	return nil
}

// DeleteFileData removes every chunk of the file and then the file row
// itself. It is safe to call for a file that was never created.
func (r *IngestRepo) DeleteFileData(ctx context.Context, fileID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "begin tx")
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = $1`, fileID); err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "delete chunks")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, fileID); err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "delete file")
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "commit tx")
	}
	return nil
}

func (r *IngestRepo) ChunkCount(ctx context.Context, fileID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE file_id = $1`, fileID).Scan(&count)
	if err != nil {
		return 0, errs.Wrap(errs.ErrDatabase, err, "count chunks")
	}
	return count, nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		// Every row carries the same key set so the batch insert stays a
		// single statement.
		var bbox interface{}
		if chunk.BBox != nil {
			blob, err := json.Marshal(chunk.BBox)
			if err != nil {
				return errs.Wrap(errs.ErrDatabase, err, "encode bbox")
			}
			bbox = blob
		}
		rows = append(rows, map[string]interface{}{
			"id":          chunk.ID,
			"file_id":     chunk.FileID,
			"file_name":   chunk.FileName,
			"course_id":   chunk.CourseID,
			"course_name": chunk.CourseName,
			"embedding":   pgvector.NewVector(chunk.Embedding),
			"content":     chunk.Content,
			"chunk_index": chunk.Index,
			"page_index":  chunk.PageIndex,
			"page_number": chunk.PageNumber,
			"bbox":        bbox,
		})
	}
	sqlStr, args, err := builder.BuildInsert("chunks", rows)
	if err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "build chunk insert")
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return errs.Wrap(errs.ErrDatabase, err, "insert chunks")
	}
	return nil
}
