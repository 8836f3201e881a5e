package service

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledgehub/kms-backend/internal/kms/domain"
	"github.com/knowledgehub/kms-backend/internal/kms/events"
	"github.com/knowledgehub/kms-backend/internal/kms/repository"
	"github.com/knowledgehub/kms-backend/pkg/database"
	"github.com/knowledgehub/kms-backend/pkg/errors"
	"github.com/knowledgehub/kms-backend/pkg/logger"
	"github.com/knowledgehub/kms-backend/pkg/messaging"
	"github.com/knowledgehub/kms-backend/pkg/testutil"
)

type intakeFixture struct {
	svc       *IntakeService
	mockDB    *testutil.MockDB
	publisher *testutil.MockPublisher
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("test", "test")
	db := database.NewFromSqlx(mockDB.DB, log)

	pub := testutil.NewMockPublisher()
	eventPub := events.NewEventPublisher(pub, pub, log)

	svc := NewIntakeService(
		repository.NewCollectedRepository(db),
		repository.NewCategoryRepository(db),
		repository.NewSpaceRepository(db),
		eventPub,
		testMetrics,
		log,
	)

	return &intakeFixture{svc: svc, mockDB: mockDB, publisher: pub}
}

func collectedRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "file_name", "file_size", "file_type", "source", "source_detail",
		"status", "space_id", "category_ids", "tags", "effective_date", "expiry_date",
		"notes", "collected_by", "collected_by_name", "contributor_name",
		"classified_by", "classified_at", "document_id", "created_at", "updated_at",
	})
}

func addCollectedRow(rows *sqlmock.Rows, id, status string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id, "Collected "+id, id+".pdf", 2048, "application/pdf", "crawler", "intranet crawl",
		status, "space-1", "{cat-1}", "{}", nil, nil,
		"", "user-1", "Alice", nil,
		nil, nil, nil, now, now,
	)
}

func (f *intakeFixture) expectGetByIDs(rows *sqlmock.Rows) {
	f.mockDB.Mock.ExpectQuery("FROM collected_documents WHERE id = ANY").
		WillReturnRows(rows)
}

func (f *intakeFixture) expectSpace(id string) {
	now := time.Now()
	f.mockDB.Mock.ExpectQuery("FROM spaces WHERE id = ").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "type", "description", "is_private", "created_by", "created_at", "updated_at",
		}).AddRow(id, "Engineering", "department", "", false, "user-1", now, now))
}

func TestIntakeService_Upload(t *testing.T) {
	t.Run("inserts the whole batch in one transaction", func(t *testing.T) {
		f := newIntakeFixture(t)
		f.expectSpace("space-1")

		f.mockDB.Mock.ExpectBegin()
		for i := 0; i < 2; i++ {
			f.mockDB.Mock.ExpectQuery("INSERT INTO collected_documents").
				WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
					AddRow(time.Now(), time.Now()))
		}
		f.mockDB.Mock.ExpectCommit()

		docs, err := f.svc.Upload(actorContext(), "space-1", UploadBatch{
			Source:       "upload",
			SourceDetail: "quarterly policy drop",
			Files: []UploadFile{
				{Title: "Security Policy", FileName: "policy.pdf", FileSize: 4096, FileType: "application/pdf"},
				{Title: "Onboarding FAQ", FileName: "faq.html", FileType: "text/html"},
			},
		})
		require.NoError(t, err)
		require.Len(t, docs, 2)

		for _, d := range docs {
			assert.NotEmpty(t, d.ID)
			assert.Equal(t, string(domain.CollectionCollected), d.Status)
		}
		f.publisher.AssertEventPublished(t, messaging.EventCollectionUploaded)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})

	t.Run("rejects an unknown source", func(t *testing.T) {
		f := newIntakeFixture(t)

		_, err := f.svc.Upload(actorContext(), "space-1", UploadBatch{
			Source:       "carrier-pigeon",
			SourceDetail: "rooftop",
			Files:        []UploadFile{{Title: "Bad Source", FileName: "bad.pdf"}},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrValidation))

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Contains(t, appErr.Details, "source")
		f.publisher.AssertNoEventsPublished(t)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})

	t.Run("requires a source detail", func(t *testing.T) {
		f := newIntakeFixture(t)

		_, err := f.svc.Upload(actorContext(), "space-1", UploadBatch{
			Source:       "upload",
			SourceDetail: "   ",
			Files:        []UploadFile{{Title: "Fine", FileName: "ok.pdf"}},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrValidation))

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Contains(t, appErr.Details, "source_detail")
		f.publisher.AssertNoEventsPublished(t)
	})

	t.Run("rejects the batch when any member is invalid", func(t *testing.T) {
		f := newIntakeFixture(t)
		f.expectSpace("space-1")

		_, err := f.svc.Upload(actorContext(), "space-1", UploadBatch{
			Source:       "upload",
			SourceDetail: "shared drive sweep",
			Files: []UploadFile{
				{Title: "Fine", FileName: "ok.pdf"},
				{Title: "   ", FileName: "blank.pdf"},
			},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrValidation))

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Contains(t, appErr.Details, "blank.pdf")
		f.publisher.AssertNoEventsPublished(t)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})

	t.Run("requires an existing space", func(t *testing.T) {
		f := newIntakeFixture(t)
		f.mockDB.Mock.ExpectQuery("FROM spaces WHERE id = ").
			WithArgs("space-missing").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := f.svc.Upload(actorContext(), "space-missing", UploadBatch{
			Source:       "upload",
			SourceDetail: "orphan drop",
			Files:        []UploadFile{{Title: "Orphan", FileName: "o.pdf"}},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})
}

func TestIntakeService_Classify(t *testing.T) {
	t.Run("classifies collected documents", func(t *testing.T) {
		f := newIntakeFixture(t)

		rows := collectedRows()
		addCollectedRow(rows, "cd-1", "collected")
		addCollectedRow(rows, "cd-2", "classified")
		f.expectGetByIDs(rows)

		f.mockDB.Mock.ExpectQuery("FROM categories WHERE id IN").
			WithArgs("cat-1").
			WillReturnRows(categoryRows())

		f.mockDB.Mock.ExpectBegin()
		f.mockDB.Mock.ExpectExec("UPDATE collected_documents").
			WillReturnResult(sqlmock.NewResult(0, 2))
		f.mockDB.Mock.ExpectCommit()

		docs, err := f.svc.Classify(actorContext(), []string{"cd-1", "cd-2"}, ClassifyInput{
			CategoryIDs: []string{"cat-1"},
			Tags:        []string{"policy"},
			Notes:       "initial triage",
		})
		require.NoError(t, err)
		for _, d := range docs {
			assert.Equal(t, string(domain.CollectionClassified), d.Status)
			require.NotNil(t, d.ClassifiedBy)
			assert.NotNil(t, d.ClassifiedAt)
		}
		f.publisher.AssertEventPublished(t, messaging.EventCollectionClassified)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})

	t.Run("a member already in approval blocks the whole batch", func(t *testing.T) {
		f := newIntakeFixture(t)

		rows := collectedRows()
		addCollectedRow(rows, "cd-1", "collected")
		addCollectedRow(rows, "cd-2", "in_approval")
		f.expectGetByIDs(rows)

		_, err := f.svc.Classify(actorContext(), []string{"cd-1", "cd-2"}, ClassifyInput{CategoryIDs: []string{"cat-1"}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidState))

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Contains(t, appErr.Details, "cd-2")
		assert.NotContains(t, appErr.Details, "cd-1")
		f.publisher.AssertNoEventsPublished(t)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})
}

func TestIntakeService_SendToApproval(t *testing.T) {
	t.Run("promotes classified documents into the approval pipeline", func(t *testing.T) {
		f := newIntakeFixture(t)

		rows := collectedRows()
		addCollectedRow(rows, "cd-1", "classified")
		addCollectedRow(rows, "cd-2", "classified")
		f.expectGetByIDs(rows)

		f.mockDB.Mock.ExpectBegin()
		for i := 0; i < 2; i++ {
			f.mockDB.Mock.ExpectQuery("INSERT INTO documents").
				WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
					AddRow(time.Now(), time.Now()))
			f.mockDB.Mock.ExpectExec("UPDATE collected_documents").
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		f.mockDB.Mock.ExpectCommit()

		expiry := time.Now().AddDate(1, 0, 0)
		docs, err := f.svc.SendToApproval(actorContext(), []string{"cd-1", "cd-2"}, &expiry)
		require.NoError(t, err)
		require.Len(t, docs, 2)

		for _, d := range docs {
			assert.Equal(t, string(domain.StatusPendingLevel1), d.LifecycleStatus)
			assert.Equal(t, 1, d.VersionNumber)
			assert.NotNil(t, d.SubmittedAt)
			assert.Equal(t, "user-1", d.OwnerID)
		}
		f.publisher.AssertEventPublished(t, messaging.EventCollectionSubmitted)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})

	t.Run("an unclassified member blocks the batch and is named", func(t *testing.T) {
		f := newIntakeFixture(t)

		rows := collectedRows()
		addCollectedRow(rows, "cd-1", "classified")
		addCollectedRow(rows, "cd-2", "collected")
		f.expectGetByIDs(rows)

		_, err := f.svc.SendToApproval(actorContext(), []string{"cd-1", "cd-2"}, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidState))

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Contains(t, appErr.Details, "cd-2")
		f.publisher.AssertNoEventsPublished(t)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})
}

func TestIntakeService_Discard(t *testing.T) {
	t.Run("discards freshly collected documents", func(t *testing.T) {
		f := newIntakeFixture(t)

		rows := collectedRows()
		addCollectedRow(rows, "cd-1", "collected")
		addCollectedRow(rows, "cd-2", "collected")
		f.expectGetByIDs(rows)

		f.mockDB.Mock.ExpectBegin()
		f.mockDB.Mock.ExpectExec("UPDATE collected_documents").
			WillReturnResult(sqlmock.NewResult(0, 2))
		f.mockDB.Mock.ExpectCommit()

		err := f.svc.Discard(actorContext(), []string{"cd-1", "cd-2"})
		require.NoError(t, err)
		f.publisher.AssertEventPublished(t, messaging.EventCollectionDiscarded)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})

	t.Run("refuses to discard a classified document", func(t *testing.T) {
		f := newIntakeFixture(t)

		rows := collectedRows()
		addCollectedRow(rows, "cd-1", "collected")
		addCollectedRow(rows, "cd-2", "classified")
		f.expectGetByIDs(rows)

		err := f.svc.Discard(actorContext(), []string{"cd-1", "cd-2"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidState))

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Contains(t, appErr.Details, "cd-2")
		assert.NotContains(t, appErr.Details, "cd-1")
		f.publisher.AssertNoEventsPublished(t)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})

	t.Run("refuses to discard a document in approval", func(t *testing.T) {
		f := newIntakeFixture(t)

		rows := collectedRows()
		addCollectedRow(rows, "cd-1", "in_approval")
		f.expectGetByIDs(rows)

		err := f.svc.Discard(actorContext(), []string{"cd-1"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInvalidState))
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})
}
