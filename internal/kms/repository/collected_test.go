package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledgehub/kms-backend/internal/kms/domain"
	"github.com/knowledgehub/kms-backend/pkg/database"
	"github.com/knowledgehub/kms-backend/pkg/errors"
	"github.com/knowledgehub/kms-backend/pkg/logger"
	"github.com/knowledgehub/kms-backend/pkg/testutil"
)

func newCollectedRepo(t *testing.T) (*CollectedRepository, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	db := database.NewFromSqlx(mockDB.DB, logger.New("test", "test"))
	return NewCollectedRepository(db), mockDB
}

func collectedRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "file_name", "file_size", "file_type", "source", "source_detail",
		"status", "space_id", "category_ids", "tags", "effective_date", "expiry_date",
		"notes", "collected_by", "collected_by_name", "contributor_name",
		"classified_by", "classified_at", "document_id", "created_at", "updated_at",
	})
}

func TestClassifyBatch(t *testing.T) {
	ids := []string{"cd-1", "cd-2"}
	attrs := ClassifyAttrs{CategoryIDs: []string{"cat-1"}, Tags: []string{"policy"}}

	t.Run("all rows updated", func(t *testing.T) {
		repo, mockDB := newCollectedRepo(t)

		mockDB.ExpectBegin()
		mockDB.Mock.ExpectExec("UPDATE collected_documents").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mockDB.ExpectCommit()

		err := repo.ClassifyBatch(context.Background(), ids, attrs, "user-1")
		require.NoError(t, err)

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("partial update rolls back", func(t *testing.T) {
		repo, mockDB := newCollectedRepo(t)

		mockDB.ExpectBegin()
		mockDB.Mock.ExpectExec("UPDATE collected_documents").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectRollback()

		err := repo.ClassifyBatch(context.Background(), ids, attrs, "user-1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrConflict))

		mockDB.ExpectationsWereMet(t)
	})
}

func TestDiscardBatch(t *testing.T) {
	t.Run("partial discard rolls back", func(t *testing.T) {
		repo, mockDB := newCollectedRepo(t)

		mockDB.ExpectBegin()
		mockDB.Mock.ExpectExec("UPDATE collected_documents").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mockDB.ExpectRollback()

		err := repo.DiscardBatch(context.Background(), []string{"cd-1"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrConflict))

		mockDB.ExpectationsWereMet(t)
	})
}

func TestGetByIDsNamesMissing(t *testing.T) {
	repo, mockDB := newCollectedRepo(t)
	now := time.Now()

	rows := collectedRows().AddRow(
		"cd-1", "Report", "report.pdf", 1024, "application/pdf", "upload", "shared drive",
		"collected", "space-1", "{}", "{}", nil, nil,
		"", "user-1", "Alice", nil,
		nil, nil, nil, now, now,
	)

	mockDB.Mock.ExpectQuery("SELECT (.+) FROM collected_documents").
		WillReturnRows(rows)

	_, err := repo.GetByIDs(context.Background(), []string{"cd-1", "cd-missing"})
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "NOT_FOUND", appErr.Code)
	assert.Contains(t, appErr.Details, "cd-missing")
	assert.NotContains(t, appErr.Details, "cd-1")
}

func TestSubmitBatchRollsBackOnRace(t *testing.T) {
	repo, mockDB := newCollectedRepo(t)
	now := time.Now()

	collected := []*CollectedDocument{{ID: "cd-1", Title: "Report", SpaceID: "space-1", Status: "classified"}}
	docs := []*Document{{Title: "Report", SpaceID: "space-1", OwnerID: "user-1", LifecycleStatus: "pending_level_1", VersionNumber: 1, LockVersion: 1}}

	mockDB.ExpectBegin()
	mockDB.Mock.ExpectQuery("INSERT INTO documents").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	// The collected row was discarded concurrently: zero rows updated.
	mockDB.Mock.ExpectExec("UPDATE collected_documents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectRollback()

	err := repo.SubmitBatch(context.Background(), collected, docs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	mockDB.ExpectationsWereMet(t)
}

func TestSetStatusByDocumentID(t *testing.T) {
	t.Run("updates the linked intake row", func(t *testing.T) {
		repo, mockDB := newCollectedRepo(t)

		mockDB.Mock.ExpectExec("UPDATE collected_documents").
			WithArgs("approved", "doc-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SetStatusByDocumentID(context.Background(), "doc-1", domain.CollectionApproved)
		require.NoError(t, err)

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("no linked row is not an error", func(t *testing.T) {
		repo, mockDB := newCollectedRepo(t)

		mockDB.Mock.ExpectExec("UPDATE collected_documents").
			WithArgs("rejected", "doc-2").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SetStatusByDocumentID(context.Background(), "doc-2", domain.CollectionRejected)
		require.NoError(t, err)

		mockDB.ExpectationsWereMet(t)
	})
}
