package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryQueue_FrontStaysUntilPopped(t *testing.T) {
	q := newEntryQueue()

	for _, id := range []string{"A", "B", "C"} {
		q.Enqueue(&entry{id: id})
	}

	e, ok := q.Front()
	require.True(t, ok)
	assert.Equal(t, "A", e.id)

	// A retry sees the same head
	e, _ = q.Front()
	assert.Equal(t, "A", e.id)

	assert.Equal(t, 2, q.PopFront())
	e, _ = q.Front()
	assert.Equal(t, "B", e.id)
}

func TestEntryQueue_FrontEmpty(t *testing.T) {
	q := newEntryQueue()

	_, ok := q.Front()
	assert.False(t, ok, "front of empty queue should return false")
	assert.Equal(t, 0, q.PopFront())
}

func TestEntryQueue_WaitSignalsEnqueue(t *testing.T) {
	q := newEntryQueue()

	done := make(chan struct{})
	go func() {
		<-q.Wait()
		close(done)
	}()

	// Give goroutine time to block
	time.Sleep(10 * time.Millisecond)
	q.Enqueue(&entry{id: "x"})

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("wait did not fire")
	}
}

func TestEntryQueue_CloseWakesAndRejects(t *testing.T) {
	q := newEntryQueue()
	q.Close()

	select {
	case <-q.Wait():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("wait did not fire after close")
	}

	assert.Equal(t, -1, q.Enqueue(&entry{id: "late"}))
	assert.True(t, q.Closed())
	q.Close() // idempotent
}

func TestEntryQueue_ThreadSafe(t *testing.T) {
	q := newEntryQueue()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(&entry{})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())
	assert.Len(t, q.Snapshot(), producers*perProducer)
}
