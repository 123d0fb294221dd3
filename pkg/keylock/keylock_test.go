package keylock_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"everkeep/pkg/keylock"
)

func TestSameKeySerializes(t *testing.T) {
	locks := keylock.New()
	const goroutines = 50

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("memorial", "abc", "self_voice")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, goroutines, counter)
}

func TestUnlockReleases(t *testing.T) {
	locks := keylock.New()
	unlock := locks.Lock("a", "b")
	unlock()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("a", "b")
		unlock()
		close(done)
	}()
	<-done
}
