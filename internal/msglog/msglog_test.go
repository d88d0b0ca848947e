package msglog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestRecordNewestFirst(t *testing.T) {
	l := New()
	l.Record("first")
	l.Record("second")
	l.Record("third")

	recent := l.Recent(3)
	assert.Equal(t, 3, len(recent))
	assert.Equal(t, "third", recent[0].Message)
	assert.Equal(t, "second", recent[1].Message)
	assert.Equal(t, "first", recent[2].Message)
}

func TestCapacityEviction(t *testing.T) {
	l := New()
	for i := 1; i <= Capacity+1; i++ {
		l.Record(fmt.Sprintf("entry %d", i))
	}

	assert.Equal(t, Capacity, l.Len())

	recent := l.Recent(Capacity)
	assert.Equal(t, Capacity, len(recent))
	assert.Equal(t, fmt.Sprintf("entry %d", Capacity+1), recent[0].Message)
	// The very first entry was evicted.
	assert.Equal(t, "entry 2", recent[Capacity-1].Message)
	for _, e := range recent {
		assert.NotEqual(t, "entry 1", e.Message)
	}
}

func TestRecentBounds(t *testing.T) {
	l := New()
	l.Record("only")

	assert.Equal(t, 0, len(l.Recent(0)))
	assert.Equal(t, 0, len(l.Recent(-1)))
	assert.Equal(t, 1, len(l.Recent(20)))
}

func TestConcurrentRecordAndRecent(t *testing.T) {
	l := New()
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				l.Record(fmt.Sprintf("writer %d entry %d", w, i))
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				entries := l.Recent(Capacity)
				if len(entries) > Capacity {
					t.Errorf("log exceeded capacity: %d", len(entries))
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, Capacity, l.Len())
}
