package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedLock_Serializes_Same_Key(t *testing.T) {
	req := require.New(t)
	locks := newKeyedLock()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("message-1")
			defer unlock()
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	req.Equal(1, maxInside)
	// Then no entry is left behind
	req.Zero(locks.size())
}

func TestKeyedLock_Different_Keys_Do_Not_Wait(t *testing.T) {
	req := require.New(t)
	locks := newKeyedLock()

	// Given a key held for the whole test
	unlock := locks.Lock("message-1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		release := locks.Lock("message-2")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Unrelated key was blocked")
	}
}
