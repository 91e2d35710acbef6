package lockutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	var (
		km      = NewKeyedMutex()
		wg      sync.WaitGroup
		counter int
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(1)
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, km.len())
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()

	unlock := km.Lock(1)
	defer unlock()

	done := make(chan struct{})
	go func() {
		km.Lock(2)()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another key blocked")
	}
}

func TestKeyedMutex_TryAcquire(t *testing.T) {
	km := NewKeyedMutex()

	release, ok := km.TryAcquire(7)
	require.True(t, ok)

	_, ok = km.TryAcquire(7)
	assert.False(t, ok)

	_, ok = km.TryAcquire(8)
	assert.True(t, ok)

	release()
	release, ok = km.TryAcquire(7)
	require.True(t, ok)
	release()
}
