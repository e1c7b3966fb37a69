package pipe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelFIFO(t *testing.T) {
	ch := NewChannel[string]()
	p, err := ch.Producer()
	require.NoError(t, err)
	c, err := ch.Consumer()
	require.NoError(t, err)

	p.Push("a")
	p.Push("b")
	assert.Equal(t, 2, ch.Len())

	v, err := c.Pop()
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = c.Pop()
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	assert.True(t, c.Empty())
}

func TestChannelPopEmpty(t *testing.T) {
	ch := NewChannel[int]()
	c, err := ch.Consumer()
	require.NoError(t, err)

	assert.True(t, c.Empty())
	_, err = c.Pop()
	assert.ErrorIs(t, err, ErrChannelEmpty)
}

func TestChannelExclusiveHandles(t *testing.T) {
	ch := NewChannel[int]()

	p1, err := ch.Producer()
	require.NoError(t, err)
	_, err = ch.Producer()
	assert.ErrorIs(t, err, ErrChannelBusy)

	c1, err := ch.Consumer()
	require.NoError(t, err)
	_, err = ch.Consumer()
	assert.ErrorIs(t, err, ErrChannelBusy)

	p1.Release()
	p2, err := ch.Producer()
	require.NoError(t, err, "released token must be reusable")
	p2.Push(7)

	c1.Release()
	c1.Release() // idempotent
	c2, err := ch.Consumer()
	require.NoError(t, err)
	v, err := c2.Pop()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestChannelReleasedHandlePanics(t *testing.T) {
	ch := NewChannel[int]()
	p, err := ch.Producer()
	require.NoError(t, err)
	p.Release()
	assert.Panics(t, func() { p.Push(1) })

	c, err := ch.Consumer()
	require.NoError(t, err)
	c.Release()
	assert.Panics(t, func() { _, _ = c.Pop() })
}

func TestChannelCompactionKeepsOrder(t *testing.T) {
	ch := NewChannel[int]()
	p, _ := ch.Producer()
	c, _ := ch.Consumer()

	const n = 5000
	next := 0
	for i := 0; i < n; i++ {
		p.Push(i)
		// Pop two of every three to keep a growing tail behind the head.
		if i%3 != 0 {
			v, err := c.Pop()
			require.NoError(t, err)
			require.Equal(t, next, v)
			next++
		}
	}
	for !c.Empty() {
		v, err := c.Pop()
		require.NoError(t, err)
		require.Equal(t, next, v)
		next++
	}
	assert.Equal(t, n, next)
}

func TestChannelConcurrentNoLossNoDup(t *testing.T) {
	ch := NewChannel[int]()
	p, _ := ch.Producer()
	c, _ := ch.Consumer()

	const n = 20000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			p.Push(i)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for want := 0; want < n; want++ {
		v, err := c.Wait(ctx)
		require.NoError(t, err)
		require.Equal(t, want, v)
	}
	wg.Wait()
	assert.True(t, c.Empty())
}

func TestChannelWaitHonoursContext(t *testing.T) {
	ch := NewChannel[int]()
	c, _ := ch.Consumer()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannelWaitWakesOnPush(t *testing.T) {
	ch := NewChannel[int]()
	p, _ := ch.Producer()
	c, _ := ch.Consumer()

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Push(42)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := c.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
