package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/knowledgehub/kms-backend/pkg/database"
	"github.com/knowledgehub/kms-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite creates a new integration test suite.
// Call this in TestMain to set up shared test infrastructure.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//
//	    s, err := testutil.NewIntegrationSuite(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    suite = s
//
//	    code := m.Run()
//	    testutil.TerminateContainer(ctx)
//	    os.Exit(code)
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.New("test", "test")
	wrappedDB, err := database.NewWithDSN(container.DSN, log)
	if err != nil {
		return nil, err
	}

	if err := container.ApplySchema(ctx, db); err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        wrappedDB,
		Fixtures:  NewFixtureFactory(),
		Logger:    log,
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// TruncateAll wipes every KMS table between tests. Registered as a
// t.Cleanup so each test starts from an empty database.
func (s *IntegrationSuite) TruncateAll(t *testing.T, ctx context.Context) {
	t.Helper()

	tables := []string{
		"audit_log",
		"extension_history",
		"document_versions",
		"collected_documents",
		"documents",
		"space_members",
		"categories",
		"spaces",
		"user_cache",
	}

	for _, table := range tables {
		if _, err := s.RawDB.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}

// SeedSpace inserts a space row and returns the fixture
func (s *IntegrationSuite) SeedSpace(t *testing.T, ctx context.Context, opts ...func(*SpaceFixture)) SpaceFixture {
	t.Helper()

	space := s.Fixtures.Space(opts...)
	_, err := s.RawDB.ExecContext(ctx,
		`INSERT INTO spaces (id, name, type, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		space.ID, space.Name, space.Type, space.Description, space.CreatedAt,
	)
	if err != nil {
		t.Fatalf("failed to seed space: %v", err)
	}
	return space
}

// SeedCategory inserts a category row and returns the fixture
func (s *IntegrationSuite) SeedCategory(t *testing.T, ctx context.Context, opts ...func(*CategoryFixture)) CategoryFixture {
	t.Helper()

	cat := s.Fixtures.Category(opts...)
	_, err := s.RawDB.ExecContext(ctx,
		`INSERT INTO categories (id, name, parent_id, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		cat.ID, cat.Name, cat.ParentID, cat.IsActive, cat.CreatedAt,
	)
	if err != nil {
		t.Fatalf("failed to seed category: %v", err)
	}
	return cat
}

// SeedDocument inserts a document row and returns the fixture. The
// document's space must already exist.
func (s *IntegrationSuite) SeedDocument(t *testing.T, ctx context.Context, opts ...func(*DocumentFixture)) DocumentFixture {
	t.Helper()

	doc := s.Fixtures.Document(opts...)
	_, err := s.RawDB.ExecContext(ctx,
		`INSERT INTO documents (id, title, content, space_id, category_ids, lifecycle_status,
		                        owner_id, expiry_date, version_number, lock_version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		doc.ID, doc.Title, doc.Content, doc.SpaceID, toTextArray(doc.CategoryIDs),
		doc.LifecycleStatus, doc.OwnerID, doc.ExpiryDate, doc.VersionNumber, doc.LockVersion, doc.CreatedAt,
	)
	if err != nil {
		t.Fatalf("failed to seed document: %v", err)
	}
	return doc
}

// toTextArray renders a Go slice as a postgres text[] literal
func toTextArray(ids []string) string {
	out := "{"
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", id)
	}
	return out + "}"
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}

// UnitTestSuite provides a base for unit tests with mocked dependencies
type UnitTestSuite struct {
	MockDB   *MockDB
	Fixtures *FixtureFactory
	t        *testing.T
}

// NewUnitTestSuite creates a new unit test suite
func NewUnitTestSuite(t *testing.T) *UnitTestSuite {
	return &UnitTestSuite{
		MockDB:   NewMockDB(t),
		Fixtures: NewFixtureFactory(),
		t:        t,
	}
}

// Cleanup verifies expectations and cleans up
func (s *UnitTestSuite) Cleanup() {
	s.MockDB.ExpectationsWereMet(s.t)
	s.MockDB.Close()
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// IsCI returns true if running in CI environment
func IsCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}
