package local

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan *LocalMessage) *LocalMessage {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("no message")
		return nil
	}
}

func TestPubSub_FanOut(t *testing.T) {
	ps := NewPubSub(4)
	ctx := context.Background()

	a, cancelA, err := ps.Subscribe(ctx, "session:events")
	require.NoError(t, err)
	defer cancelA()
	b, cancelB, err := ps.Subscribe(ctx, "session:events", "other")
	require.NoError(t, err)
	defer cancelB()

	require.NoError(t, ps.Publish(ctx, "session:events", "kick:7"))
	assert.Equal(t, "kick:7", recv(t, a).Payload)
	m := recv(t, b)
	assert.Equal(t, "session:events", m.Channel)
	assert.Equal(t, "kick:7", m.Payload)

	require.NoError(t, ps.Publish(ctx, "other", "x"))
	assert.Equal(t, "x", recv(t, b).Payload)
	assert.Empty(t, a)
}

func TestPubSub_CancelClosesAndUnsubscribes(t *testing.T) {
	ps := NewPubSub(1)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "c")
	require.NoError(t, err)
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.NoError(t, ps.Publish(ctx, "c", "late"))
	assert.Empty(t, ps.subscribers)
}

func TestPubSub_FullBufferDrops(t *testing.T) {
	ps := NewPubSub(1)
	ctx := context.Background()
	ch, cancel, _ := ps.Subscribe(ctx, "c")
	defer cancel()

	_ = ps.Publish(ctx, "c", "1")
	_ = ps.Publish(ctx, "c", "2")
	assert.Equal(t, "1", recv(t, ch).Payload)
	assert.Empty(t, ch)
}

func TestPubSub_CancelDuringPublish(t *testing.T) {
	ps := NewPubSub(1)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		_, cancel, _ := ps.Subscribe(ctx, "c")
		wg.Add(2)
		go func() { defer wg.Done(); _ = ps.Publish(ctx, "c", "m") }()
		go func() { defer wg.Done(); cancel() }()
	}
	wg.Wait()
}
