package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledgehub/kms-backend/pkg/messaging"
)

func TestExpiryScanner_ScanAll(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	expectCandidates := func(f *lifecycleFixture, rows *sqlmock.Rows) {
		f.mockDB.Mock.ExpectQuery("FROM documents").
			WithArgs("active", "near_expired", "expired").
			WillReturnRows(rows)
	}

	t.Run("marks documents near expiry and expired", func(t *testing.T) {
		f := newLifecycleFixture(t)
		f.scanner.now = func() time.Time { return now }

		soon := now.AddDate(0, 0, 10)
		far := now.AddDate(0, 0, 90)
		past := now.AddDate(0, 0, -2)

		rows := documentRows()
		addDocumentRow(rows, "doc-soon", "active", &soon, 1)
		addDocumentRow(rows, "doc-far", "active", &far, 1)
		addDocumentRow(rows, "doc-past", "near_expired", &past, 1)
		expectCandidates(f, rows)

		// Each changed document is re-read under its lock before the write.
		f.expectGetDocument("doc-soon", "active", &soon, 1)
		f.expectLifecycleUpdate(1) // doc-soon -> near_expired
		f.expectGetDocument("doc-past", "near_expired", &past, 1)
		f.expectLifecycleUpdate(1) // doc-past -> expired

		result, err := f.scanner.ScanAll(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 3, result.Scanned)
		assert.Equal(t, 1, result.NearExpired)
		assert.Equal(t, 1, result.Expired)
		assert.Equal(t, 0, result.Skipped)
		f.publisher.AssertEventPublished(t, messaging.EventDocumentNearExpired)
		f.publisher.AssertEventPublished(t, messaging.EventDocumentExpired)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})

	t.Run("is idempotent once statuses match the dates", func(t *testing.T) {
		f := newLifecycleFixture(t)
		f.scanner.now = func() time.Time { return now }

		soon := now.AddDate(0, 0, 10)
		past := now.AddDate(0, 0, -2)

		rows := documentRows()
		addDocumentRow(rows, "doc-soon", "near_expired", &soon, 2)
		addDocumentRow(rows, "doc-past", "expired", &past, 2)
		expectCandidates(f, rows)

		result, err := f.scanner.ScanAll(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, result.Scanned)
		assert.Equal(t, 0, result.NearExpired)
		assert.Equal(t, 0, result.Expired)
		f.publisher.AssertNoEventsPublished(t)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})

	t.Run("a manual transition between list and lock wins", func(t *testing.T) {
		f := newLifecycleFixture(t)
		f.scanner.now = func() time.Time { return now }

		past := now.AddDate(0, 0, -1)
		rows := documentRows()
		addDocumentRow(rows, "doc-contended", "active", &past, 1)
		expectCandidates(f, rows)

		// The re-read under the lock finds it archived; no write happens.
		f.expectGetDocument("doc-contended", "archived", &past, 2)

		result, err := f.scanner.ScanAll(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, 0, result.Expired)
		f.publisher.AssertNoEventsPublished(t)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})

	t.Run("a transition in another process wins the lock version race", func(t *testing.T) {
		f := newLifecycleFixture(t)
		f.scanner.now = func() time.Time { return now }

		past := now.AddDate(0, 0, -1)
		rows := documentRows()
		addDocumentRow(rows, "doc-contended", "active", &past, 1)
		expectCandidates(f, rows)

		f.expectGetDocument("doc-contended", "active", &past, 1)
		f.expectLifecycleUpdate(0) // another instance got there first

		result, err := f.scanner.ScanAll(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, 0, result.Expired)
		f.publisher.AssertNoEventsPublished(t)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})

	t.Run("reactivates after an expiry date moved forward", func(t *testing.T) {
		f := newLifecycleFixture(t)
		f.scanner.now = func() time.Time { return now }

		far := now.AddDate(1, 0, 0)
		rows := documentRows()
		addDocumentRow(rows, "doc-renewed", "near_expired", &far, 3)
		expectCandidates(f, rows)

		f.expectGetDocument("doc-renewed", "near_expired", &far, 3)
		f.expectLifecycleUpdate(1)

		result, err := f.scanner.ScanAll(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, result.Reactivated)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})

	t.Run("waits for an in-flight manual transition on the same document", func(t *testing.T) {
		f := newLifecycleFixture(t)
		f.scanner.now = func() time.Time { return now }

		past := now.AddDate(0, 0, -2)
		rows := documentRows()
		addDocumentRow(rows, "doc-held", "active", &past, 1)
		expectCandidates(f, rows)

		// Once the scan gets the lock it finds the document archived by
		// the transition that held it.
		f.expectGetDocument("doc-held", "archived", &past, 2)

		unlock := f.locks.Lock("doc-held")

		var (
			result  *ScanResult
			scanErr error
		)
		done := make(chan struct{})
		go func() {
			defer close(done)
			result, scanErr = f.scanner.ScanAll(context.Background())
		}()

		select {
		case <-done:
			t.Fatal("scan completed while the document lock was held")
		case <-time.After(50 * time.Millisecond):
		}

		unlock()
		<-done

		require.NoError(t, scanErr)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, 0, result.Expired)
		f.publisher.AssertNoEventsPublished(t)
		require.NoError(t, f.mockDB.Mock.ExpectationsWereMet())
	})
}
