package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockTable(t *testing.T) {
	t.Run("serializes access per key", func(t *testing.T) {
		locks := NewLockTable()
		counter := 0

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := locks.Lock("doc-1")
				defer unlock()
				counter++
			}()
		}
		wg.Wait()

		assert.Equal(t, 50, counter)
	})

	t.Run("releases entries once unused", func(t *testing.T) {
		locks := NewLockTable()

		unlock := locks.Lock("doc-1")
		unlock()

		locks.mu.Lock()
		defer locks.mu.Unlock()
		assert.Empty(t, locks.locks)
	})

	t.Run("different keys do not block each other", func(t *testing.T) {
		locks := NewLockTable()

		unlockA := locks.Lock("doc-a")
		defer unlockA()

		done := make(chan struct{})
		go func() {
			unlockB := locks.Lock("doc-b")
			unlockB()
			close(done)
		}()
		<-done
	})
}
