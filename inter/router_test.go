package inter

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/metrics"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/packet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

// pipeConn returns a Conn over an in-memory pipe and the world-process end.
func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	c := NewConn(server, 16, nop())
	t.Cleanup(func() {
		c.Close()
		_ = client.Close()
	})
	return c, client
}

func TestRouter_On_Dispatch_Basic(t *testing.T) {
	r := NewRouter(nil, nop())
	var got packet.Frame
	var traceID string
	r.On(packet.OpLoadGuildStorage, func(ctx context.Context, _ *Conn, f packet.Frame) error {
		got = f
		traceID = TraceIDFromCtx(ctx)
		return nil
	})
	c, _ := pipeConn(t)

	f := packet.Frame{Op: packet.OpLoadGuildStorage, Length: 12, Payload: make([]byte, 8)}
	r.Dispatch(context.Background(), c, f)
	assert.Equal(t, f, got)
	assert.Len(t, traceID, 36)
	assert.True(t, r.Handles(packet.OpLoadGuildStorage))
	assert.False(t, r.Handles(packet.OpItemBoundRetrieve))
}

func TestRouter_Dispatch_UnknownOpcode(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRouter(metrics.NewInterMetrics(reg), nop())
	called := false
	r.On(packet.OpLoadGuildStorage, func(context.Context, *Conn, packet.Frame) error {
		called = true
		return nil
	})
	c, _ := pipeConn(t)

	r.Dispatch(context.Background(), c, packet.Frame{Op: 0x7777, Length: 4})
	assert.False(t, called)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var rejected float64
	for _, mf := range mfs {
		if mf.GetName() == "inter_rejected_frames_total" {
			rejected = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), rejected)
}

func TestRouter_Dispatch_HandlerErrorIsContained(t *testing.T) {
	r := NewRouter(nil, nop())
	r.On(packet.OpSaveGuildStorage, func(context.Context, *Conn, packet.Frame) error {
		return errors.New("boom")
	})
	c, _ := pipeConn(t)
	assert.NotPanics(t, func() {
		r.Dispatch(context.Background(), c, packet.Frame{Op: packet.OpSaveGuildStorage, Length: 4})
	})
}

func TestTraceIDFromCtx_Missing(t *testing.T) {
	assert.Empty(t, TraceIDFromCtx(context.Background()))
}

func TestConn_SendAfterClose(t *testing.T) {
	c, _ := pipeConn(t)
	c.Close()
	assert.True(t, c.IsClosed())
	assert.False(t, c.Send([]byte{1, 2, 3, 4}))
	c.Close() // must not panic
}

func TestConn_ConcurrentClose(t *testing.T) {
	c, _ := pipeConn(t)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			c.Close()
		}()
	}
	close(start)
	wg.Wait()

	assert.True(t, c.IsClosed())
	select {
	case <-c.Exited():
	case <-time.After(time.Second):
		t.Fatal("write goroutine did not exit")
	}
}

func TestConn_SendDropsWhenQueueFull(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	c := NewConn(server, 1, nop())
	defer c.Close()

	// Nobody reads the pipe: the writer blocks on the first frame and the
	// queue then holds one more.
	sent := 0
	for i := 0; i < 10; i++ {
		if c.Send([]byte{0, 0, 4, 0}) {
			sent++
		}
	}
	assert.Less(t, sent, 10)
}
