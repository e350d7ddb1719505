package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_PanicsOnInvalidCapacity(t *testing.T) {
	assert.PanicsWithValue(t, "ringchan: capacity must be > 0", func() { New[int](0) })
}

func TestRingChannel_KeepsNewest(t *testing.T) {
	rc := New[int](3)

	for i := 0; i < 10; i++ {
		require.True(t, rc.Send(i))
	}

	assert.Equal(t, 3, rc.Len())
	assert.Equal(t, 3, rc.Cap())
	assert.Equal(t, int64(7), rc.Dropped())

	rc.Close()
	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{7, 8, 9}, got)
}

func TestRingChannel_SendAfterClose(t *testing.T) {
	rc := New[string](1)
	rc.Close()
	rc.Close()

	assert.False(t, rc.Send("late"))
}

func TestRingChannel_ConcurrentProducersNeverBlock(t *testing.T) {
	rc := New[int](4)
	var wg sync.WaitGroup

	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				rc.Send(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, rc.Len())
	assert.Equal(t, int64(4*1000-4), rc.Dropped())
}
