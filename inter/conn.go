package inter

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultSendBuf = 256
	writeDeadline  = 10 * time.Second
)

// Conn is one world-process link. Outgoing frames are queued on a buffered
// channel and written by a dedicated goroutine.
type Conn struct {
	ID          string
	Remote      string
	ConnectedAt time.Time

	conn   net.Conn
	send   chan []byte
	done      chan struct{}
	closeOnce sync.Once
	exited    chan struct{}
	logger    *zap.Logger
}

// NewConn wraps c and starts its write goroutine.
func NewConn(c net.Conn, sendBuf int, logger *zap.Logger) *Conn {
	if sendBuf <= 0 {
		sendBuf = defaultSendBuf
	}
	conn := &Conn{
		ID:          uuid.NewString(),
		Remote:      c.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		conn:        c,
		send:        make(chan []byte, sendBuf),
		done:        make(chan struct{}),
		exited:      make(chan struct{}),
	}
	conn.logger = logger.With(zap.String("remote", conn.Remote), zap.String("link_id", conn.ID))
	go conn.writePump()
	return conn
}

// writePump drains the send queue. After Close it flushes what is already
// queued and closes the socket.
func (c *Conn) writePump() {
	defer close(c.exited)
	defer c.conn.Close()
	for {
		select {
		case data := <-c.send:
			if !c.write(data) {
				return
			}
		case <-c.done:
			for {
				select {
				case data := <-c.send:
					if !c.write(data) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Conn) write(data []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if _, err := c.conn.Write(data); err != nil {
		c.logger.Warn("inter write error", zap.Error(err))
		return false
	}
	return true
}

// Send queues an encoded frame without blocking. It reports false when the
// frame was dropped because the queue is full or the link is closed.
func (c *Conn) Send(data []byte) bool {
	if c.IsClosed() {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn("send queue full, dropping frame", zap.Int("bytes", len(data)))
		return false
	}
}

// Close signals the write goroutine to flush and close the socket.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// IsClosed returns true if the link has been closed.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Exited is closed once the write goroutine has released the socket.
func (c *Conn) Exited() <-chan struct{} { return c.exited }
