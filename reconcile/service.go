package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/audit"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/cache"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/item"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/model"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrLocked is returned when a retrieval for the same character held the
// lock past the wait.
var ErrLocked = errors.New("reconcile: character retrieval locked")

const defaultLockTTL = 30 * time.Second

// slotColumns maps the equip slots shown on the character record to the
// view column they drive. Slots not listed have no view column.
var slotColumns = []struct {
	slot   item.EquipMask
	column string
}{
	{item.EquipHandR, "weapon"},
	{item.EquipHandL, "shield"},
	{item.EquipHeadTop, "head_top"},
	{item.EquipHeadMid, "head_mid"},
	{item.EquipHeadLow, "head_bottom"},
	{item.EquipGarment, "robe"},
}

// Request identifies the offline character whose guild-bound items move
// into the guild's storage.
type Request struct {
	CharID    int32  `json:"char_id"`
	AccountID int32  `json:"account_id"`
	GuildID   int32  `json:"guild_id"`
	TraceID   string `json:"-"`
	Remote    string `json:"-"`
}

// Result reports what a retrieval changed.
type Result struct {
	Moved   int      `json:"moved"`
	Cleared []string `json:"cleared,omitempty"`
}

// Options tunes a Service.
type Options struct {
	// Atomic runs delete, unequip and insert in one transaction.
	Atomic bool
	// LockTTL bounds both the lock lifetime and the wait for it.
	LockTTL time.Duration
}

// Service moves guild-bound items out of a character's inventory.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	audit  *audit.Service
	opts   Options
	logger *zap.Logger
}

// NewService creates a reconcile Service. auditSvc may be nil.
func NewService(db *gorm.DB, c cache.Cache, auditSvc *audit.Service, opts Options, logger *zap.Logger) *Service {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	return &Service{db: db, cache: c, audit: auditSvc, opts: opts, logger: logger}
}

// LockKey is the cache key serialising retrievals of one character.
func LockKey(charID int32) string {
	return fmt.Sprintf("lock:bound_retrieve:%d", charID)
}

// Retrieve selects the character's guild-bound inventory rows, deletes
// them, clears the view columns of every slot they occupied and inserts
// them into the guild's storage with no expiry. A character without
// guild-bound items yields a zero Result and no error. A failed stage
// stops the ones after it.
func (svc *Service) Retrieve(ctx context.Context, req Request) (Result, error) {
	log := svc.logger.With(
		zap.Int32("char_id", req.CharID),
		zap.Int32("account_id", req.AccountID),
		zap.Int32("guild_id", req.GuildID),
		zap.String("trace_id", req.TraceID))

	waitCtx, cancel := context.WithTimeout(ctx, svc.opts.LockTTL)
	release, err := cache.Lock(waitCtx, svc.cache, LockKey(req.CharID), svc.opts.LockTTL)
	cancel()
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		log.Warn("bound retrieve: character busy", zap.Error(err))
		return Result{}, fmt.Errorf("%w: char %d", ErrLocked, req.CharID)
	case err != nil:
		log.Error("bound retrieve: lock failed", zap.Error(err))
		return Result{}, fmt.Errorf("lock char %d: %w", req.CharID, err)
	}
	defer release()

	db := svc.db.WithContext(ctx)

	var rows []model.Inventory
	err = db.Where("char_id = ? AND bound = ?", req.CharID, uint8(item.BoundGuild)).
		Order("id").
		Limit(item.MaxInventory).
		Find(&rows).Error
	if err != nil {
		log.Error("bound retrieve: select failed", zap.Error(err))
		return Result{}, fmt.Errorf("%w: select bound items of char %d: %w", storage.ErrQueryFailed, req.CharID, err)
	}
	if len(rows) == 0 {
		log.Debug("bound retrieve: nothing to move")
		return Result{}, nil
	}

	start := time.Now()
	var res Result
	if svc.opts.Atomic {
		err = db.Transaction(func(tx *gorm.DB) error {
			res, err = transfer(tx, req, rows)
			return err
		})
		if err != nil {
			res = Result{} // rolled back
		}
	} else {
		res, err = transfer(db, req, rows)
	}
	svc.record(req, res, err, time.Since(start))

	if err != nil {
		log.Error("bound retrieve failed", zap.Int("items", len(rows)), zap.Error(err))
		return res, fmt.Errorf("%w: %w", storage.ErrQueryFailed, err)
	}
	log.Info("bound items moved to guild storage",
		zap.Int("items", res.Moved), zap.Strings("cleared", res.Cleared))
	return res, nil
}

// transfer runs the delete, unequip and insert statements on db.
func transfer(db *gorm.DB, req Request, rows []model.Inventory) (Result, error) {
	var res Result

	ids := make([]int32, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	if err := db.Where("char_id = ? AND id IN ?", req.CharID, ids).Delete(&model.Inventory{}).Error; err != nil {
		return res, fmt.Errorf("delete inventory rows: %w", err)
	}

	view := make(map[string]interface{})
	for _, r := range rows {
		equip := item.EquipMask(r.Equip)
		for _, sc := range slotColumns {
			if equip.Has(sc.slot) {
				if _, seen := view[sc.column]; !seen {
					res.Cleared = append(res.Cleared, sc.column)
				}
				view[sc.column] = 0
			}
		}
	}
	if len(view) > 0 {
		if err := db.Model(&model.Character{}).Where("char_id = ?", req.CharID).Updates(view).Error; err != nil {
			return res, fmt.Errorf("clear equip view: %w", err)
		}
	}

	moved := make([]model.GuildStorageItem, len(rows))
	for i, r := range rows {
		cols := r.ItemColumns
		cols.ExpireTime = 0
		moved[i] = model.GuildStorageItem{GuildID: req.GuildID, ItemColumns: cols}
	}
	if err := db.Create(&moved).Error; err != nil {
		return res, fmt.Errorf("insert guild storage rows: %w", err)
	}
	res.Moved = len(moved)
	return res, nil
}

func (svc *Service) record(req Request, res Result, err error, d time.Duration) {
	if svc.audit == nil {
		return
	}
	charID, accountID, guildID := req.CharID, req.AccountID, req.GuildID
	entry := audit.Entry{
		TraceID:    req.TraceID,
		CharID:     &charID,
		AccountID:  &accountID,
		GuildID:    &guildID,
		Action:     "bound_retrieve",
		Request:    req,
		Response:   res,
		Remote:     req.Remote,
		DurationMs: int(d.Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	svc.audit.Log(entry)
}
