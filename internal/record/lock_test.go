package record

import (
	"sync"
	"testing"
)

func TestSessionLockMutualExclusion(t *testing.T) {
	lock := NewSessionLock()

	if !lock.TryAcquire() {
		t.Fatal("fresh lock not acquirable")
	}
	if lock.TryAcquire() {
		t.Fatal("held lock acquired twice")
	}
	lock.Release()
	if !lock.TryAcquire() {
		t.Fatal("released lock not acquirable")
	}
}

func TestSessionLockSingleWinnerUnderContention(t *testing.T) {
	lock := NewSessionLock()

	const contenders = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lock.TryAcquire() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}
