package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// Entry holds one audited item movement.
type Entry struct {
	TraceID    string
	CharID     *int32
	AccountID  *int32
	GuildID    *int32
	Action     string
	Request    interface{}
	Response   interface{}
	Error      string
	Remote     string
	DurationMs int
}

// Service writes audit entries asynchronously in batches. Auditing never
// holds up a storage request: a full queue drops the entry and counts it.
type Service struct {
	db      *gorm.DB
	queue   chan *model.AuditLog
	quit    chan struct{}
	exited  chan struct{}
	once    sync.Once
	dropped atomic.Int64
	logger  *zap.Logger
}

// New creates an audit Service and starts its background writer.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		queue:  make(chan *model.AuditLog, queueSize),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
		logger: logger.Named("audit"),
	}
	go svc.run()
	return svc
}

// Log enqueues an entry without blocking.
func (svc *Service) Log(e Entry) {
	rec := &model.AuditLog{
		TraceID:    e.TraceID,
		CharID:     e.CharID,
		AccountID:  e.AccountID,
		GuildID:    e.GuildID,
		Action:     e.Action,
		Request:    toJSON(e.Request),
		Response:   toJSON(e.Response),
		Error:      e.Error,
		Remote:     e.Remote,
		DurationMs: e.DurationMs,
	}
	select {
	case svc.queue <- rec:
	default:
		svc.dropped.Add(1)
		svc.logger.Warn("queue full, entry dropped",
			zap.String("action", e.Action), zap.String("trace_id", e.TraceID))
	}
}

// Dropped returns how many entries were lost to a full queue.
func (svc *Service) Dropped() int64 { return svc.dropped.Load() }

// Stop writes what is still queued and waits for the writer, or for ctx.
func (svc *Service) Stop(ctx context.Context) error {
	svc.once.Do(func() { close(svc.quit) })
	select {
	case <-svc.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func (svc *Service) run() {
	defer close(svc.exited)
	tick := time.NewTicker(flushInterval)
	defer tick.Stop()

	pending := make([]*model.AuditLog, 0, batchSize)
	for {
		select {
		case rec := <-svc.queue:
			pending = append(pending, rec)
			if len(pending) == batchSize {
				pending = svc.write(pending)
			}
		case <-tick.C:
			pending = svc.write(pending)
		case <-svc.quit:
			for n := len(svc.queue); n > 0; n-- {
				pending = append(pending, <-svc.queue)
			}
			svc.write(pending)
			return
		}
	}
}

// write stores recs and returns the emptied slice for reuse.
func (svc *Service) write(recs []*model.AuditLog) []*model.AuditLog {
	if len(recs) == 0 {
		return recs
	}
	if err := svc.db.CreateInBatches(recs, batchSize).Error; err != nil {
		svc.logger.Error("batch write failed", zap.Int("entries", len(recs)), zap.Error(err))
	}
	return recs[:0]
}
