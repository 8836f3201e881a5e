package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledgehub/kms-backend/internal/kms/domain"
	"github.com/knowledgehub/kms-backend/pkg/database"
	"github.com/knowledgehub/kms-backend/pkg/errors"
	"github.com/knowledgehub/kms-backend/pkg/logger"
	"github.com/knowledgehub/kms-backend/pkg/testutil"
)

func newTestRepo(t *testing.T) (*DocumentRepository, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	db := database.NewFromSqlx(mockDB.DB, logger.New("test", "test"))
	return NewDocumentRepository(db), mockDB
}

func documentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "content", "file_name", "space_id", "category_ids", "lifecycle_status",
		"owner_id", "owner_name", "expiry_date", "version_number", "lock_version",
		"submitted_at", "published_at", "archived_at",
		"level1_approved_by", "level1_approved_at",
		"level2_approved_by", "level2_approved_at",
		"level3_approved_by", "level3_approved_at",
		"rejected_level", "rejected_by", "rejected_at", "rejection_reason",
		"created_at", "updated_at",
	})
}

func TestDocumentGetByID(t *testing.T) {
	repo, mockDB := newTestRepo(t)
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		rows := documentRows().AddRow(
			"doc-1", "Onboarding Guide", "body", nil, "space-1", "{cat-1}", "active",
			"user-1", "Alice", nil, 1, 3,
			nil, nil, nil,
			nil, nil, nil, nil, nil, nil,
			nil, nil, nil, nil,
			now, now,
		)
		mockDB.Mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ").
			WithArgs("doc-1").
			WillReturnRows(rows)

		doc, err := repo.GetByID(context.Background(), "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "Onboarding Guide", doc.Title)
		assert.Equal(t, "active", doc.LifecycleStatus)
		assert.Equal(t, 3, doc.LockVersion)
		assert.Equal(t, domain.DocApproved, doc.Status())
	})

	t.Run("not found", func(t *testing.T) {
		mockDB.Mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ").
			WithArgs("missing").
			WillReturnRows(documentRows())

		_, err := repo.GetByID(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	mockDB.ExpectationsWereMet(t)
}

func TestDocumentUpdateLifecycle(t *testing.T) {
	now := time.Now()
	doc := &Document{
		ID:              "doc-1",
		Title:           "Guide",
		Content:         "body",
		SpaceID:         "space-1",
		CategoryIDs:     pq.StringArray{"cat-1"},
		LifecycleStatus: string(domain.StatusPendingLevel2),
		OwnerID:         "user-1",
		VersionNumber:   1,
		LockVersion:     2,
		SubmittedAt:     &now,
	}

	t.Run("bumps lock version on success", func(t *testing.T) {
		repo, mockDB := newTestRepo(t)

		mockDB.Mock.ExpectExec("UPDATE documents").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateLifecycle(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, 3, doc.LockVersion)

		mockDB.ExpectationsWereMet(t)
	})

	t.Run("stale lock version is a conflict", func(t *testing.T) {
		repo, mockDB := newTestRepo(t)

		mockDB.Mock.ExpectExec("UPDATE documents").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateLifecycle(context.Background(), doc)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrConflict))

		mockDB.ExpectationsWereMet(t)
	})
}

func TestDocumentCreateDefaults(t *testing.T) {
	repo, mockDB := newTestRepo(t)
	now := time.Now()

	mockDB.Mock.ExpectQuery("INSERT INTO documents").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	doc := &Document{
		Title:   "New Draft",
		SpaceID: "space-1",
		OwnerID: "user-1",
	}
	err := repo.Create(context.Background(), doc)
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, string(domain.StatusDraft), doc.LifecycleStatus)
	assert.Equal(t, 1, doc.VersionNumber)
	assert.Equal(t, 1, doc.LockVersion)

	mockDB.ExpectationsWereMet(t)
}

func TestListExpiryCandidates(t *testing.T) {
	repo, mockDB := newTestRepo(t)
	now := time.Now()
	expiry := now.AddDate(0, 0, 10)

	rows := documentRows().AddRow(
		"doc-1", "Expiring", "body", nil, "space-1", "{cat-1}", "active",
		"user-1", "Alice", expiry, 1, 1,
		nil, nil, nil,
		nil, nil, nil, nil, nil, nil,
		nil, nil, nil, nil,
		now, now,
	)

	mockDB.Mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs("active", "near_expired", "expired").
		WillReturnRows(rows)

	docs, err := repo.ListExpiryCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.NotNil(t, docs[0].ExpiryDate)

	mockDB.ExpectationsWereMet(t)
}

func TestCountByCategory(t *testing.T) {
	repo, mockDB := newTestRepo(t)

	mockDB.Mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "pending"}).AddRow(7, 2))

	total, pending, err := repo.CountByCategory(context.Background(), "cat-1")
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Equal(t, 2, pending)

	mockDB.ExpectationsWereMet(t)
}
