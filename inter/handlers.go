package inter

import (
	"context"
	"errors"
	"fmt"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/metrics"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/packet"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/reconcile"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/session"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/storage"
	"go.uber.org/zap"
)

// Handlers serves the storage opcodes of the inter-server protocol.
type Handlers struct {
	storage   *storage.Service
	reconcile *reconcile.Service
	sessions  *session.Manager
	metrics   *metrics.InterMetrics
	logger    *zap.Logger
}

// NewHandlers creates the storage handlers. m may be nil.
func NewHandlers(st *storage.Service, rc *reconcile.Service, sm *session.Manager, m *metrics.InterMetrics, logger *zap.Logger) *Handlers {
	return &Handlers{storage: st, reconcile: rc, sessions: sm, metrics: m, logger: logger}
}

// Register installs the handlers on r. The bound-item retrieval handler is
// only installed when boundItems is set.
func (h *Handlers) Register(r *Router, boundItems bool) {
	r.On(packet.OpLoadGuildStorage, h.LoadGuildStorage)
	r.On(packet.OpSaveGuildStorage, h.SaveGuildStorage)
	if boundItems {
		r.On(packet.OpItemBoundRetrieve, h.ItemBoundRetrieve)
	}
}

// LoadGuildStorage answers with the guild's storage opened on the client,
// or with the failure body.
func (h *Handlers) LoadGuildStorage(ctx context.Context, c *Conn, f packet.Frame) error {
	m, err := packet.DecodeLoadGuildStorage(f)
	if err != nil {
		h.metrics.IncRejected("framing_mismatch")
		h.sendLoadFailure(c, m.AccountID)
		return fmt.Errorf("load guild storage: %w", err)
	}
	return h.sendGuildStorage(ctx, c, m.AccountID, int32(m.GuildID), packet.StorageOpen)
}

// sendGuildStorage loads and sends a guild's storage. Any failure is
// answered with the failure body.
func (h *Handlers) sendGuildStorage(ctx context.Context, c *Conn, accountID uint32, guildID int32, openFlag uint8) error {
	gs, err := h.storage.LoadGuildStorage(ctx, guildID)
	if err != nil {
		h.sendLoadFailure(c, accountID)
		return fmt.Errorf("load guild storage %d for account %d: %w", guildID, accountID, err)
	}
	b, err := packet.EncodeGuildStorageLoaded(packet.GuildStorageLoaded{
		AccountID: accountID,
		GuildID:   uint32(gs.GuildID),
		OpenFlag:  openFlag,
		Items:     gs.Items,
	})
	if err != nil {
		h.sendLoadFailure(c, accountID)
		return fmt.Errorf("encode guild storage %d: %w", guildID, err)
	}
	c.Send(b)
	return nil
}

func (h *Handlers) sendLoadFailure(c *Conn, accountID uint32) {
	b, err := packet.EncodeGuildStorageLoaded(packet.GuildStorageLoadedFailure(accountID))
	if err != nil {
		h.logger.Error("encode guild storage failure body", zap.Error(err))
		return
	}
	c.Send(b)
}

// SaveGuildStorage persists the carried items and acknowledges. A frame
// whose length disagrees with its item count is rejected before the guild
// is looked up and nothing is written.
func (h *Handlers) SaveGuildStorage(ctx context.Context, c *Conn, f packet.Frame) error {
	m, err := packet.DecodeSaveGuildStorage(f)
	if err != nil {
		h.metrics.IncRejected("framing_mismatch")
		h.sendSaveAck(c, m.AccountID, m.GuildID, true)
		return fmt.Errorf("save guild storage: %w", err)
	}

	guildID := int32(m.GuildID)
	exists, err := h.storage.GuildExists(ctx, guildID)
	if err != nil {
		h.sendSaveAck(c, m.AccountID, m.GuildID, true)
		return err
	}
	if !exists {
		h.sendSaveAck(c, m.AccountID, m.GuildID, true)
		return fmt.Errorf("save guild storage: %w: guild %d", storage.ErrNotFound, guildID)
	}

	if n := h.storage.SaveGuildStorage(ctx, &storage.GuildStorage{GuildID: guildID, Items: m.Items}); n > 0 {
		h.logger.Warn("guild storage saved with errors",
			zap.Int32("guild_id", guildID), zap.Int("errors", n),
			zap.String("trace_id", TraceIDFromCtx(ctx)))
	}
	h.sendSaveAck(c, m.AccountID, m.GuildID, false)
	return nil
}

func (h *Handlers) sendSaveAck(c *Conn, accountID, guildID uint32, fail bool) {
	b, err := packet.EncodeSaveGuildStorageAck(packet.SaveGuildStorageAck{
		AccountID: accountID, GuildID: guildID, Fail: fail,
	})
	if err != nil {
		h.logger.Error("encode save ack", zap.Error(err))
		return
	}
	c.Send(b)
}

// ItemBoundRetrieve moves the character's guild-bound items into guild
// storage, pushes the refreshed storage without opening it, kicks the
// account at its front end and always acknowledges so the world process can
// unlock the storage.
func (h *Handlers) ItemBoundRetrieve(ctx context.Context, c *Conn, f packet.Frame) error {
	m, err := packet.DecodeItemBoundRetrieve(f)
	defer h.sendBoundAck(c, m.AccountID, m.GuildID)
	if err != nil {
		h.metrics.IncRejected("framing_mismatch")
		return fmt.Errorf("item bound retrieve: %w", err)
	}

	res, err := h.reconcile.Retrieve(ctx, reconcile.Request{
		CharID:    int32(m.CharID),
		AccountID: int32(m.AccountID),
		GuildID:   int32(m.GuildID),
		TraceID:   TraceIDFromCtx(ctx),
		Remote:    c.Remote,
	})
	switch {
	case errors.Is(err, reconcile.ErrLocked):
		h.metrics.ObserveReconcile(metrics.OutcomeLocked, 0)
		return err
	case err != nil:
		h.metrics.ObserveReconcile(metrics.OutcomeFailed, 0)
		return err
	case res.Moved == 0:
		h.metrics.ObserveReconcile(metrics.OutcomeNothing, 0)
		return nil
	}
	h.metrics.ObserveReconcile(metrics.OutcomeMoved, res.Moved)

	loadErr := h.sendGuildStorage(ctx, c, m.AccountID, int32(m.GuildID), packet.StorageKeepClosed)
	if _, err := h.sessions.Kick(ctx, int32(m.AccountID)); err != nil {
		return errors.Join(loadErr, err)
	}
	return loadErr
}

func (h *Handlers) sendBoundAck(c *Conn, accountID uint32, guildID uint16) {
	b, err := packet.EncodeItemBoundAck(packet.ItemBoundAck{AccountID: accountID, GuildID: guildID})
	if err != nil {
		h.logger.Error("encode bound ack", zap.Error(err))
		return
	}
	c.Send(b)
}
