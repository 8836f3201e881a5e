package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/knowledgehub/kms-backend/internal/kms/events"
	"github.com/knowledgehub/kms-backend/internal/kms/repository"
	"github.com/knowledgehub/kms-backend/pkg/actor"
	"github.com/knowledgehub/kms-backend/pkg/database"
	"github.com/knowledgehub/kms-backend/pkg/logger"
	"github.com/knowledgehub/kms-backend/pkg/metrics"
	"github.com/knowledgehub/kms-backend/pkg/testutil"
)

// Prometheus collectors register in the default registry, so the whole
// package shares one instance.
var testMetrics = metrics.New()

type lifecycleFixture struct {
	svc       *LifecycleService
	scanner   *ExpiryScanner
	locks     *LockTable
	mockDB    *testutil.MockDB
	publisher *testutil.MockPublisher
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("test", "test")
	db := database.NewFromSqlx(mockDB.DB, log)

	pub := testutil.NewMockPublisher()
	eventPub := events.NewEventPublisher(pub, pub, log)

	documents := repository.NewDocumentRepository(db)
	categories := repository.NewCategoryRepository(db)
	collected := repository.NewCollectedRepository(db)
	audit := repository.NewAuditRepository(db)

	locks := NewLockTable()

	return &lifecycleFixture{
		svc:       NewLifecycleService(documents, categories, collected, audit, eventPub, testMetrics, log, locks),
		scanner:   NewExpiryScanner(documents, eventPub, testMetrics, log, locks, 30),
		locks:     locks,
		mockDB:    mockDB,
		publisher: pub,
	}
}

func actorContext() context.Context {
	return actor.WithActor(context.Background(), testutil.TestActor())
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

func addDocumentRow(rows *sqlmock.Rows, id, status string, expiry *time.Time, lockVersion int) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id, "Test Document", "body", nil, "space-1", "{cat-1}", status,
		"user-1", "Alice", expiry, 1, lockVersion,
		nil, nil, nil,
		nil, nil, nil, nil, nil, nil,
		nil, nil, nil, nil,
		now, now,
	)
}

func categoryRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "parent_id", "description", "is_active", "created_at", "updated_at",
	}).AddRow("cat-1", "Policies", nil, "", true, now, now)
}

// expectGetDocument sets up the SELECT for one document load.
func (f *lifecycleFixture) expectGetDocument(id, status string, expiry *time.Time, lockVersion int) {
	f.mockDB.Mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ").
		WithArgs(id).
		WillReturnRows(addDocumentRow(documentRows(), id, status, expiry, lockVersion))
}

// expectLifecycleUpdate sets up the optimistic UPDATE.
func (f *lifecycleFixture) expectLifecycleUpdate(rowsAffected int64) {
	f.mockDB.Mock.ExpectExec("UPDATE documents").
		WillReturnResult(sqlmock.NewResult(0, rowsAffected))
}

// expectIntakeSync sets up the UPDATE that mirrors a lifecycle outcome
// onto the linked intake row.
func (f *lifecycleFixture) expectIntakeSync(status string) {
	f.mockDB.Mock.ExpectExec("UPDATE collected_documents").
		WithArgs(status, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

// expectAudit sets up the audit trail INSERT.
func (f *lifecycleFixture) expectAudit() {
	f.mockDB.Mock.ExpectQuery("INSERT INTO audit_log").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
}
