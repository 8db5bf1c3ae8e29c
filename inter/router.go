package inter

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/metrics"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/packet"
	"go.uber.org/zap"
)

// HandlerFunc processes one inbound frame. Handlers answer the request
// themselves; a returned error is only logged.
type HandlerFunc func(ctx context.Context, c *Conn, f packet.Frame) error

// Router dispatches inbound frames to the handler registered for their opcode.
type Router struct {
	handlers map[packet.Opcode]HandlerFunc
	metrics  *metrics.InterMetrics
	logger   *zap.Logger
}

// NewRouter creates a new Router. m may be nil.
func NewRouter(m *metrics.InterMetrics, logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[packet.Opcode]HandlerFunc),
		metrics:  m,
		logger:   logger,
	}
}

// On registers fn for op, replacing any previous handler.
func (r *Router) On(op packet.Opcode, fn HandlerFunc) {
	r.handlers[op] = fn
}

// Handles reports whether a handler is registered for op.
func (r *Router) Handles(op packet.Opcode) bool {
	_, ok := r.handlers[op]
	return ok
}

// Dispatch runs the handler for f. Unknown opcodes are logged and skipped;
// the frame has already been consumed so the stream stays in sync.
func (r *Router) Dispatch(ctx context.Context, c *Conn, f packet.Frame) {
	fn, ok := r.handlers[f.Op]
	if !ok {
		r.metrics.IncRejected("unknown_opcode")
		r.logger.Warn("unhandled opcode",
			zap.String("opcode", f.Op.String()),
			zap.Uint16("length", f.Length),
			zap.String("remote", c.Remote))
		return
	}

	traceID := uuid.NewString()
	ctx = context.WithValue(ctx, ctxKeyTraceID{}, traceID)

	start := time.Now()
	err := fn(ctx, c, f)
	r.metrics.ObserveRequest(f.Op.String(), time.Since(start))
	if err != nil {
		r.logger.Error("handler error",
			zap.String("opcode", f.Op.String()),
			zap.String("remote", c.Remote),
			zap.String("trace_id", traceID),
			zap.Error(err))
	}
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
