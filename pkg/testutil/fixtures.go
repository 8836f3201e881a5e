package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentFixture represents test document data
type DocumentFixture struct {
	ID              string
	Title           string
	Content         string
	SpaceID         string
	CategoryIDs     []string
	LifecycleStatus string
	OwnerID         string
	ExpiryDate      *time.Time
	VersionNumber   int
	LockVersion     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CollectedDocumentFixture represents test intake pipeline data
type CollectedDocumentFixture struct {
	ID           string
	Title        string
	FileName     string
	Source       string
	SourceDetail string
	Status       string
	SpaceID      string
	CategoryIDs  []string
	CollectedBy  string
	CreatedAt    time.Time
}

// CategoryFixture represents test category data
type CategoryFixture struct {
	ID        string
	Name      string
	ParentID  *string
	IsActive  bool
	CreatedAt time.Time
}

// SpaceFixture represents test space data
type SpaceFixture struct {
	ID          string
	Name        string
	Type        string
	Description string
	IsPrivate   bool
	CreatedAt   time.Time
}

// SpaceMemberFixture represents test space membership data
type SpaceMemberFixture struct {
	SpaceID string
	UserID  string
	Role    string
	AddedAt time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Document creates a document fixture with defaults
func (f *FixtureFactory) Document(opts ...func(*DocumentFixture)) DocumentFixture {
	seq := f.nextSeq()

	doc := DocumentFixture{
		ID:              uuid.New().String(),
		Title:           fmt.Sprintf("Test Document %d", seq),
		Content:         "Test document body",
		SpaceID:         uuid.New().String(),
		CategoryIDs:     []string{uuid.New().String()},
		LifecycleStatus: "draft",
		OwnerID:         uuid.New().String(),
		VersionNumber:   1,
		LockVersion:     1,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	for _, opt := range opts {
		opt(&doc)
	}

	return doc
}

// WithLifecycleStatus sets the document lifecycle status
func WithLifecycleStatus(status string) func(*DocumentFixture) {
	return func(d *DocumentFixture) {
		d.LifecycleStatus = status
	}
}

// WithExpiryDate sets the document expiry date
func WithExpiryDate(t time.Time) func(*DocumentFixture) {
	return func(d *DocumentFixture) {
		d.ExpiryDate = &t
	}
}

// WithSpace sets the document's space
func WithSpace(spaceID string) func(*DocumentFixture) {
	return func(d *DocumentFixture) {
		d.SpaceID = spaceID
	}
}

// WithCategories sets the document category ids
func WithCategories(ids ...string) func(*DocumentFixture) {
	return func(d *DocumentFixture) {
		d.CategoryIDs = ids
	}
}

// WithOwner sets the document owner
func WithOwner(userID string) func(*DocumentFixture) {
	return func(d *DocumentFixture) {
		d.OwnerID = userID
	}
}

// CollectedDocument creates a collected document fixture with defaults
func (f *FixtureFactory) CollectedDocument(opts ...func(*CollectedDocumentFixture)) CollectedDocumentFixture {
	seq := f.nextSeq()

	cd := CollectedDocumentFixture{
		ID:           uuid.New().String(),
		Title:        fmt.Sprintf("Collected Document %d", seq),
		FileName:     fmt.Sprintf("document-%04d.pdf", seq),
		Source:       "upload",
		SourceDetail: "manual upload",
		Status:       "collected",
		SpaceID:      uuid.New().String(),
		CollectedBy:  uuid.New().String(),
		CreatedAt:    time.Now(),
	}

	for _, opt := range opts {
		opt(&cd)
	}

	return cd
}

// WithCollectionStatus sets the collected document status
func WithCollectionStatus(status string) func(*CollectedDocumentFixture) {
	return func(c *CollectedDocumentFixture) {
		c.Status = status
	}
}

// WithSource sets the collected document source
func WithSource(source string) func(*CollectedDocumentFixture) {
	return func(c *CollectedDocumentFixture) {
		c.Source = source
	}
}

// Category creates a category fixture with defaults
func (f *FixtureFactory) Category(opts ...func(*CategoryFixture)) CategoryFixture {
	seq := f.nextSeq()

	cat := CategoryFixture{
		ID:        uuid.New().String(),
		Name:      fmt.Sprintf("Category %d", seq),
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&cat)
	}

	return cat
}

// WithParent sets the category's parent
func WithParent(parentID string) func(*CategoryFixture) {
	return func(c *CategoryFixture) {
		c.ParentID = &parentID
	}
}

// Inactive marks the category as deactivated
func Inactive() func(*CategoryFixture) {
	return func(c *CategoryFixture) {
		c.IsActive = false
	}
}

// Space creates a space fixture with defaults
func (f *FixtureFactory) Space(opts ...func(*SpaceFixture)) SpaceFixture {
	seq := f.nextSeq()

	space := SpaceFixture{
		ID:          uuid.New().String(),
		Name:        fmt.Sprintf("Space %d", seq),
		Type:        "department",
		Description: "Test space",
		CreatedAt:   time.Now(),
	}

	for _, opt := range opts {
		opt(&space)
	}

	return space
}

// WithSpaceType sets the space type
func WithSpaceType(spaceType string) func(*SpaceFixture) {
	return func(s *SpaceFixture) {
		s.Type = spaceType
	}
}

// Member creates a space member fixture
func (f *FixtureFactory) Member(spaceID, userID, role string) SpaceMemberFixture {
	return SpaceMemberFixture{
		SpaceID: spaceID,
		UserID:  userID,
		Role:    role,
		AddedAt: time.Now(),
	}
}

// DefaultCategoryTree returns a small two-level taxonomy for tests
func DefaultCategoryTree(factory *FixtureFactory) []CategoryFixture {
	root := factory.Category()
	return []CategoryFixture{
		root,
		factory.Category(WithParent(root.ID)),
		factory.Category(WithParent(root.ID)),
		factory.Category(Inactive()),
	}
}
