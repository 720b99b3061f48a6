package repo_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbworks/docingest/internal/model"
	"github.com/kbworks/docingest/internal/pkg/errs"
	"github.com/kbworks/docingest/internal/repo"
	"github.com/kbworks/docingest/test/testutil"
)

func seedCourse(t *testing.T, db *sql.DB, courseID, name string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO courses (id, name) VALUES ($1, $2)`, courseID, name)
	require.NoError(t, err)
}

func makeChunks(fileID, courseID, courseName string, from, count int) []*model.Chunk {
	chunks := make([]*model.Chunk, 0, count)
	for i := 0; i < count; i++ {
		embedding := make([]float32, 768)
		embedding[0] = float32(from + i)
		chunks = append(chunks, &model.Chunk{
			ID:         newTestID(),
			FileID:     fileID,
			FileName:   "lecture.pdf",
			CourseID:   courseID,
			CourseName: courseName,
			Embedding:  embedding,
			Content:    fmt.Sprintf("chunk %d", from+i),
			Index:      from + i,
			PageIndex:  i,
			PageNumber: i + 1,
		})
	}
	return chunks
}

func TestCourseName(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	store := repo.NewIngestRepo(db)

	courseID := newTestID()
	seedCourse(t, db, courseID, "Databases")

	name, err := store.CourseName(ctx, courseID)
	require.NoError(t, err)
	require.Equal(t, "Databases", name)

	_, err = store.CourseName(ctx, newTestID())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreateFileWithChunksAndAppend(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	store := repo.NewIngestRepo(db)

	courseID := newTestID()
	seedCourse(t, db, courseID, "Databases")
	fileID := newTestID()
	pages := 7
	bbox := [4]float64{1, 2, 3, 4}

	first := makeChunks(fileID, courseID, "Databases", 0, 2)
	first[0].BBox = &bbox
	require.NoError(t, store.CreateFileWithChunks(ctx, &model.File{
		ID:        fileID,
		CourseID:  courseID,
		Name:      "lecture.pdf",
		Size:      4096,
		PageCount: &pages,
	}, first))

	require.NoError(t, store.AppendChunks(ctx, makeChunks(fileID, courseID, "Databases", 2, 3)))

	count, err := store.ChunkCount(ctx, fileID)
	require.NoError(t, err)
	require.Equal(t, 5, count)

	var pageCount int
	require.NoError(t, db.QueryRow(`SELECT page_count FROM files WHERE id = $1`, fileID).Scan(&pageCount))
	require.Equal(t, 7, pageCount)

	var bboxBlob []byte
	require.NoError(t, db.QueryRow(
		`SELECT bbox FROM chunks WHERE file_id = $1 AND chunk_index = 0`, fileID).Scan(&bboxBlob))
	require.JSONEq(t, `[1,2,3,4]`, string(bboxBlob))
}

func TestCreateFileWithChunksDuplicate(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	store := repo.NewIngestRepo(db)

	courseID := newTestID()
	seedCourse(t, db, courseID, "Databases")
	fileID := newTestID()
	file := &model.File{ID: fileID, CourseID: courseID, Name: "lecture.pdf", Size: 1}

	require.NoError(t, store.CreateFileWithChunks(ctx, file, makeChunks(fileID, courseID, "Databases", 0, 1)))
	err := store.CreateFileWithChunks(ctx, file, makeChunks(fileID, courseID, "Databases", 0, 1))
	require.ErrorIs(t, err, errs.ErrDatabase)
}

func TestDeleteFileData(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	store := repo.NewIngestRepo(db)

	courseID := newTestID()
	seedCourse(t, db, courseID, "Databases")
	fileID := newTestID()
	require.NoError(t, store.CreateFileWithChunks(ctx, &model.File{
		ID: fileID, CourseID: courseID, Name: "lecture.pdf", Size: 1,
	}, makeChunks(fileID, courseID, "Databases", 0, 3)))

	require.NoError(t, store.DeleteFileData(ctx, fileID))

	count, err := store.ChunkCount(ctx, fileID)
	require.NoError(t, err)
	require.Zero(t, count)
	var one int
	err = db.QueryRow(`SELECT 1 FROM files WHERE id = $1`, fileID).Scan(&one)
	require.ErrorIs(t, err, sql.ErrNoRows)

	// Deleting a file that never existed is a no-op.
	require.NoError(t, store.DeleteFileData(ctx, newTestID()))
}
