// Package testutil provides testing utilities for the KMS backend.
// It includes a testcontainers PostgreSQL setup, schema bootstrapping,
// mock factories, and common test fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "kms_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    // Run tests
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "kms_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// ApplySchema creates the full KMS schema in the container database.
// Constraint names here are the ones pkg/database maps to typed errors,
// so they must stay in sync with the production migrations.
func (c *PostgresContainer) ApplySchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS spaces (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			type VARCHAR(50) NOT NULL DEFAULT 'department',
			description TEXT NOT NULL DEFAULT '',
			is_private BOOLEAN NOT NULL DEFAULT false,
			created_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT space_type_valid CHECK (type IN ('department', 'project', 'community', 'personal'))
		);

		CREATE TABLE IF NOT EXISTS space_members (
			space_id UUID NOT NULL REFERENCES spaces(id) ON DELETE CASCADE,
			user_id UUID NOT NULL,
			role VARCHAR(50) NOT NULL,
			added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT space_members_space_id_user_id UNIQUE (space_id, user_id),
			CONSTRAINT member_role_valid CHECK (role IN ('owner', 'moderator', 'contributor', 'viewer'))
		);

		CREATE TABLE IF NOT EXISTS categories (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			parent_id UUID REFERENCES categories(id),
			description TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT categories_parent_id_name UNIQUE (parent_id, name)
		);

		CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			title VARCHAR(500) NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			file_name VARCHAR(500),
			space_id UUID NOT NULL REFERENCES spaces(id),
			category_ids TEXT[] NOT NULL DEFAULT '{}',
			lifecycle_status VARCHAR(50) NOT NULL DEFAULT 'draft',
			owner_id UUID NOT NULL,
			owner_name VARCHAR(255) NOT NULL DEFAULT '',
			expiry_date TIMESTAMPTZ,
			version_number INT NOT NULL DEFAULT 1,
			lock_version INT NOT NULL DEFAULT 1,
			submitted_at TIMESTAMPTZ,
			published_at TIMESTAMPTZ,
			archived_at TIMESTAMPTZ,
			level1_approved_by UUID,
			level1_approved_at TIMESTAMPTZ,
			level2_approved_by UUID,
			level2_approved_at TIMESTAMPTZ,
			level3_approved_by UUID,
			level3_approved_at TIMESTAMPTZ,
			rejected_level INT,
			rejected_by UUID,
			rejected_at TIMESTAMPTZ,
			rejection_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT lifecycle_status_valid CHECK (lifecycle_status IN (
				'draft',
				'pending_level_1', 'pending_level_2', 'pending_level_3',
				'rejected_level_1', 'rejected_level_2', 'rejected_level_3',
				'active', 'near_expired', 'expired', 'archived', 'hidden'
			)),
			CONSTRAINT version_number_positive CHECK (version_number > 0)
		);

		CREATE INDEX IF NOT EXISTS idx_documents_space ON documents(space_id);
		CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(lifecycle_status);
		CREATE INDEX IF NOT EXISTS idx_documents_expiry ON documents(expiry_date) WHERE expiry_date IS NOT NULL;

		CREATE TABLE IF NOT EXISTS document_versions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			version_number INT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			change_log TEXT NOT NULL,
			created_by UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT document_versions_document_id_version_number UNIQUE (document_id, version_number)
		);

		CREATE TABLE IF NOT EXISTS extension_history (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			previous_expiry TIMESTAMPTZ,
			new_expiry TIMESTAMPTZ NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			extended_by UUID NOT NULL,
			extended_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS collected_documents (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			title VARCHAR(500) NOT NULL,
			file_name VARCHAR(500) NOT NULL DEFAULT '',
			file_size BIGINT NOT NULL DEFAULT 0,
			file_type VARCHAR(100) NOT NULL DEFAULT '',
			source VARCHAR(50) NOT NULL DEFAULT 'upload',
			source_detail TEXT NOT NULL DEFAULT '',
			status VARCHAR(50) NOT NULL DEFAULT 'collected',
			space_id UUID NOT NULL REFERENCES spaces(id),
			category_ids TEXT[] NOT NULL DEFAULT '{}',
			tags TEXT[] NOT NULL DEFAULT '{}',
			effective_date TIMESTAMPTZ,
			expiry_date TIMESTAMPTZ,
			notes TEXT NOT NULL DEFAULT '',
			collected_by UUID NOT NULL,
			collected_by_name VARCHAR(255) NOT NULL DEFAULT '',
			contributor_name VARCHAR(255),
			classified_by UUID,
			classified_at TIMESTAMPTZ,
			document_id UUID REFERENCES documents(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT source_valid CHECK (source IN ('upload', 'crawler', 'import')),
			CONSTRAINT collection_status_valid CHECK (status IN ('collected', 'classified', 'in_approval', 'approved', 'rejected', 'discarded'))
		);

		CREATE INDEX IF NOT EXISTS idx_collected_status ON collected_documents(status);

		CREATE TABLE IF NOT EXISTS audit_log (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			entity_type VARCHAR(50) NOT NULL,
			entity_id UUID NOT NULL,
			action VARCHAR(100) NOT NULL,
			actor_id UUID,
			actor_name VARCHAR(255),
			details JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS user_cache (
			id UUID PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			role VARCHAR(100) NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	return nil
}
