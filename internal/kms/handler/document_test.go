package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledgehub/kms-backend/internal/kms/events"
	"github.com/knowledgehub/kms-backend/internal/kms/repository"
	"github.com/knowledgehub/kms-backend/internal/kms/service"
	"github.com/knowledgehub/kms-backend/pkg/database"
	"github.com/knowledgehub/kms-backend/pkg/logger"
	"github.com/knowledgehub/kms-backend/pkg/metrics"
	"github.com/knowledgehub/kms-backend/pkg/testutil"
)

var testMetrics = metrics.New()

type documentHandlerFixture struct {
	router *chi.Mux
	mockDB *testutil.MockDB
}

func newDocumentHandlerFixture(t *testing.T) *documentHandlerFixture {
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("test", "test")
	db := database.NewFromSqlx(mockDB.DB, log)

	pub := testutil.NewMockPublisher()
	eventPub := events.NewEventPublisher(pub, pub, log)

	documents := repository.NewDocumentRepository(db)
	categories := repository.NewCategoryRepository(db)
	spaces := repository.NewSpaceRepository(db)
	collected := repository.NewCollectedRepository(db)
	audit := repository.NewAuditRepository(db)

	docSvc := service.NewDocumentService(documents, categories, spaces, log)
	lifecycle := service.NewLifecycleService(documents, categories, collected, audit, eventPub, testMetrics, log, service.NewLockTable())
	h := NewDocumentHandler(docSvc, lifecycle, log)

	r := chi.NewRouter()
	r.Route("/api/v1/documents", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Post("/{id}/submit", h.Submit)
		r.Post("/{id}/approve", h.Approve)
		r.Post("/{id}/reject", h.Reject)
		r.Post("/{id}/extend", h.Extend)
		r.Post("/{id}/versions", h.CreateVersion)
		r.Post("/{id}/archive", h.Archive)
		r.Get("/{id}/versions", h.Versions)
		r.Get("/{id}/audit", h.Audit)
	})

	return &documentHandlerFixture{router: r, mockDB: mockDB}
}

func documentRow(id, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "title", "content", "file_name", "space_id", "category_ids", "lifecycle_status",
		"owner_id", "owner_name", "expiry_date", "version_number", "lock_version",
		"submitted_at", "published_at", "archived_at",
		"level1_approved_by", "level1_approved_at",
		"level2_approved_by", "level2_approved_at",
		"level3_approved_by", "level3_approved_at",
		"rejected_level", "rejected_by", "rejected_at", "rejection_reason",
		"created_at", "updated_at",
	}).AddRow(
		id, "Handler Test Doc", "body", nil, "space-1", "{cat-1}", status,
		"user-1", "Alice", nil, 1, 1,
		nil, nil, nil,
		nil, nil, nil, nil, nil, nil,
		nil, nil, nil, nil,
		now, now,
	)
}

func TestDocumentHandler_Get(t *testing.T) {
	t.Run("returns the document", func(t *testing.T) {
		f := newDocumentHandlerFixture(t)
		f.mockDB.Mock.ExpectQuery("FROM documents WHERE id = ").
			WithArgs("doc-1").
			WillReturnRows(documentRow("doc-1", "active"))

		req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/documents/doc-1", nil)
		rr := testutil.ExecuteRequest(f.router, req)

		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp struct {
			Success bool                `json:"success"`
			Data    repository.Document `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "doc-1", resp.Data.ID)
		assert.Equal(t, "active", resp.Data.LifecycleStatus)
		assert.Equal(t, "approved", string(resp.Data.Status()))
	})

	t.Run("maps a missing document to 404", func(t *testing.T) {
		f := newDocumentHandlerFixture(t)
		f.mockDB.Mock.ExpectQuery("FROM documents WHERE id = ").
			WithArgs("doc-gone").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/documents/doc-gone", nil)
		rr := testutil.ExecuteRequest(f.router, req)

		testutil.AssertStatus(t, rr, http.StatusNotFound)
		assert.Contains(t, rr.Body.String(), "NOT_FOUND")
	})
}

func TestDocumentHandler_Audit(t *testing.T) {
	t.Run("returns the trail newest first", func(t *testing.T) {
		f := newDocumentHandlerFixture(t)
		f.mockDB.Mock.ExpectQuery("FROM documents WHERE id = ").
			WithArgs("doc-1").
			WillReturnRows(documentRow("doc-1", "active"))
		f.mockDB.Mock.ExpectQuery("FROM audit_log").
			WithArgs("document", "doc-1", 50).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "entity_type", "entity_id", "action", "actor_id", "actor_name", "details", "created_at",
			}).
				AddRow("a2", "document", "doc-1", "approve", "user-2", "Bob", nil, time.Now()).
				AddRow("a1", "document", "doc-1", "submit", "user-1", "Alice", nil, time.Now().Add(-time.Hour)))

		req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/documents/doc-1/audit", nil)
		rr := testutil.ExecuteRequest(f.router, req)

		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp struct {
			Data []repository.AuditEntry `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 2)
		assert.Equal(t, "approve", resp.Data[0].Action)
		assert.Equal(t, "submit", resp.Data[1].Action)
	})

	t.Run("maps a missing document to 404", func(t *testing.T) {
		f := newDocumentHandlerFixture(t)
		f.mockDB.Mock.ExpectQuery("FROM documents WHERE id = ").
			WithArgs("doc-gone").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/documents/doc-gone/audit", nil)
		rr := testutil.ExecuteRequest(f.router, req)

		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})
}

func TestDocumentHandler_Submit(t *testing.T) {
	t.Run("requires an authenticated actor", func(t *testing.T) {
		f := newDocumentHandlerFixture(t)

		req := testutil.NewHTTPRequest(http.MethodPost, "/api/v1/documents/doc-1/submit", nil)
		rr := testutil.ExecuteRequest(f.router, req)

		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("submits a draft", func(t *testing.T) {
		f := newDocumentHandlerFixture(t)
		f.mockDB.Mock.ExpectQuery("FROM documents WHERE id = ").
			WithArgs("doc-1").
			WillReturnRows(documentRow("doc-1", "draft"))
		f.mockDB.Mock.ExpectQuery("FROM categories WHERE id IN").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "name", "parent_id", "description", "is_active", "created_at", "updated_at",
			}).AddRow("cat-1", "Policies", nil, "", true, time.Now(), time.Now()))
		f.mockDB.Mock.ExpectExec("UPDATE documents").
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mockDB.Mock.ExpectExec("UPDATE collected_documents").
			WillReturnResult(sqlmock.NewResult(0, 0))
		f.mockDB.Mock.ExpectQuery("INSERT INTO audit_log").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

		req := testutil.WithActor(
			testutil.NewHTTPRequest(http.MethodPost, "/api/v1/documents/doc-1/submit", nil),
			testutil.TestActor(),
		)
		rr := testutil.ExecuteRequest(f.router, req)

		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Contains(t, rr.Body.String(), "pending_level_1")
	})
}

func TestDocumentHandler_Approve(t *testing.T) {
	t.Run("rejects a level outside the chain", func(t *testing.T) {
		f := newDocumentHandlerFixture(t)

		req := testutil.WithActor(
			testutil.NewHTTPRequest(http.MethodPost, "/api/v1/documents/doc-1/approve",
				map[string]int{"level": 4}),
			testutil.TestActor(),
		)
		rr := testutil.ExecuteRequest(f.router, req)

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("maps a state violation to 409", func(t *testing.T) {
		f := newDocumentHandlerFixture(t)
		f.mockDB.Mock.ExpectQuery("FROM documents WHERE id = ").
			WithArgs("doc-1").
			WillReturnRows(documentRow("doc-1", "pending_level_1"))

		req := testutil.WithActor(
			testutil.NewHTTPRequest(http.MethodPost, "/api/v1/documents/doc-1/approve",
				map[string]int{"level": 2}),
			testutil.TestActor(),
		)
		rr := testutil.ExecuteRequest(f.router, req)

		testutil.AssertStatus(t, rr, http.StatusConflict)
		assert.Contains(t, rr.Body.String(), "INVALID_STATE")
	})
}

func TestDocumentHandler_Reject(t *testing.T) {
	t.Run("requires a reason", func(t *testing.T) {
		f := newDocumentHandlerFixture(t)

		req := testutil.WithActor(
			testutil.NewHTTPRequest(http.MethodPost, "/api/v1/documents/doc-1/reject",
				map[string]interface{}{"level": 1}),
			testutil.TestActor(),
		)
		rr := testutil.ExecuteRequest(f.router, req)

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestDocumentHandler_Create(t *testing.T) {
	t.Run("rejects a payload without a space", func(t *testing.T) {
		f := newDocumentHandlerFixture(t)

		req := testutil.WithActor(
			testutil.NewHTTPRequest(http.MethodPost, "/api/v1/documents/",
				map[string]string{"title": "No Space"}),
			testutil.TestActor(),
		)
		rr := testutil.ExecuteRequest(f.router, req)

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}
