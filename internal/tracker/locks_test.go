package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserLocks_PrunedAfterUnlock(t *testing.T) {
	l := userLocks{m: make(map[int64]*userLock)}

	unlock := l.lock(1)
	unlock2 := l.lock(2)
	assert.Equal(t, 2, l.size())

	unlock()
	unlock2()
	assert.Zero(t, l.size())

	// The same user can lock again after pruning.
	l.lock(1)()
	assert.Zero(t, l.size())
}

func TestUserLocks_SerializesSameUser(t *testing.T) {
	l := userLocks{m: make(map[int64]*userLock)}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer l.lock(7)()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxSeen)
	assert.Zero(t, l.size())
}

func TestUserLocks_WaiterKeepsEntry(t *testing.T) {
	l := userLocks{m: make(map[int64]*userLock)}

	unlock := l.lock(1)
	acquired := make(chan func())
	go func() { acquired <- l.lock(1) }()

	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.m[1] != nil && l.m[1].refs == 2
	}, time.Second, time.Millisecond)

	unlock()
	assert.Equal(t, 1, l.size())

	(<-acquired)()
	assert.Zero(t, l.size())
}
