package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/item"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrQueryFailed      = errors.New("storage: query failed")
	ErrNotFound         = errors.New("storage: not found")
	ErrCapacityExceeded = errors.New("storage: capacity exceeded")
)

// Storage is an account's personal storage. It is rebuilt on every load.
type Storage struct {
	AccountID int32
	Items     []item.Item
}

// GuildStorage is a guild's shared storage. The caller owns it for the
// duration of one request.
type GuildStorage struct {
	GuildID int32
	Items   []item.Item
}

// Service persists personal and guild storage.
type Service struct {
	db     *gorm.DB
	sync   *ItemSync
	logger *zap.Logger
}

// NewService creates a storage Service on the shared store handle.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, sync: NewItemSync(db, logger), logger: logger}
}

// SaveStorage overwrites the account's storage rows with s.Items and returns
// the number of failed statements.
func (svc *Service) SaveStorage(ctx context.Context, accountID int32, s *Storage) int {
	items := s.Items
	if len(items) > item.MaxStorage {
		svc.logger.Warn("storage save truncated to capacity",
			zap.Int32("account_id", accountID),
			zap.Int("items", len(items)),
			zap.Int("capacity", item.MaxStorage))
		items = items[:item.MaxStorage]
	}
	errCount := svc.sync.Sync(ctx, TableStorage, accountID, items)
	if errCount > 0 {
		svc.logger.Error("storage save failed",
			zap.Int32("account_id", accountID), zap.Int("errors", errCount))
	} else {
		svc.logger.Info("storage saved", zap.Int32("account_id", accountID))
	}
	return errCount
}

// LoadStorage reads the account's storage ordered by item type, capped at
// item.MaxStorage. An account with no rows has an empty storage.
func (svc *Service) LoadStorage(ctx context.Context, accountID int32) (*Storage, error) {
	var rows []model.StorageItem
	err := svc.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("nameid, id").
		Limit(item.MaxStorage).
		Find(&rows).Error
	if err != nil {
		svc.logger.Error("storage load failed", zap.Int32("account_id", accountID), zap.Error(err))
		return nil, fmt.Errorf("%w: load storage %d: %w", ErrQueryFailed, accountID, err)
	}

	s := &Storage{AccountID: accountID, Items: make([]item.Item, 0, len(rows))}
	for _, r := range rows {
		s.Items = append(s.Items, r.Item(r.ID))
	}
	svc.logger.Info("storage loaded",
		zap.Int32("account_id", accountID), zap.Int("total", len(s.Items)))
	return s, nil
}

// SaveGuildStorage overwrites the guild's storage rows with gs.Items and
// returns the number of failed statements.
func (svc *Service) SaveGuildStorage(ctx context.Context, gs *GuildStorage) int {
	errCount := svc.sync.Sync(ctx, TableGuildStorage, gs.GuildID, gs.Items)
	if errCount > 0 {
		svc.logger.Error("guild storage save failed",
			zap.Int32("guild_id", gs.GuildID), zap.Int("errors", errCount))
	} else {
		svc.logger.Info("guild storage saved", zap.Int32("guild_id", gs.GuildID))
	}
	return errCount
}

// GuildExists reports whether guildID names a guild.
func (svc *Service) GuildExists(ctx context.Context, guildID int32) (bool, error) {
	var n int64
	err := svc.db.WithContext(ctx).Model(&model.Guild{}).Where("guild_id = ?", guildID).Count(&n).Error
	if err != nil {
		svc.logger.Error("guild lookup failed", zap.Int32("guild_id", guildID), zap.Error(err))
		return false, fmt.Errorf("%w: guild %d: %w", ErrQueryFailed, guildID, err)
	}
	return n > 0, nil
}

// LoadGuildStorage reads the guild's storage ordered by item type. It
// returns ErrNotFound for an unknown guild and ErrCapacityExceeded, without
// reading any row, when the guild holds more rows than the wire count field
// can carry. Expiry is not honoured in guild storage, so ExpireTime is 0.
func (svc *Service) LoadGuildStorage(ctx context.Context, guildID int32) (*GuildStorage, error) {
	exists, err := svc.GuildExists(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: guild %d", ErrNotFound, guildID)
	}

	db := svc.db.WithContext(ctx)
	var count int64
	if err := db.Model(&model.GuildStorageItem{}).Where("guild_id = ?", guildID).Count(&count).Error; err != nil {
		svc.logger.Error("guild storage count failed", zap.Int32("guild_id", guildID), zap.Error(err))
		return nil, fmt.Errorf("%w: count guild storage %d: %w", ErrQueryFailed, guildID, err)
	}
	if count > item.MaxGuildStorageRows {
		svc.logger.Error("guild storage has too many rows",
			zap.Int32("guild_id", guildID), zap.Int64("rows", count))
		return nil, fmt.Errorf("%w: guild %d has %d rows", ErrCapacityExceeded, guildID, count)
	}

	var rows []model.GuildStorageItem
	err = db.Where("guild_id = ?", guildID).
		Order("nameid, id").
		Limit(int(count)).
		Find(&rows).Error
	if err != nil {
		svc.logger.Error("guild storage load failed", zap.Int32("guild_id", guildID), zap.Error(err))
		return nil, fmt.Errorf("%w: load guild storage %d: %w", ErrQueryFailed, guildID, err)
	}

	gs := &GuildStorage{GuildID: guildID, Items: make([]item.Item, 0, len(rows))}
	for _, r := range rows {
		it := r.Item(r.ID)
		it.ExpireTime = 0
		gs.Items = append(gs.Items, it)
	}
	svc.logger.Info("guild storage loaded",
		zap.Int32("guild_id", guildID), zap.Int("total", len(gs.Items)))
	return gs, nil
}

// DeleteStorage removes every storage row of the account. Deleting an
// already empty storage succeeds.
func (svc *Service) DeleteStorage(ctx context.Context, accountID int32) error {
	res := svc.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&model.StorageItem{})
	if res.Error != nil {
		svc.logger.Error("storage delete failed", zap.Int32("account_id", accountID), zap.Error(res.Error))
		return fmt.Errorf("%w: delete storage %d: %w", ErrQueryFailed, accountID, res.Error)
	}
	svc.logger.Info("storage deleted",
		zap.Int32("account_id", accountID), zap.Int64("rows", res.RowsAffected))
	return nil
}

// DeleteGuildStorage removes every storage row of the guild, typically when
// it disbands.
func (svc *Service) DeleteGuildStorage(ctx context.Context, guildID int32) error {
	res := svc.db.WithContext(ctx).Where("guild_id = ?", guildID).Delete(&model.GuildStorageItem{})
	if res.Error != nil {
		svc.logger.Error("guild storage delete failed", zap.Int32("guild_id", guildID), zap.Error(res.Error))
		return fmt.Errorf("%w: delete guild storage %d: %w", ErrQueryFailed, guildID, res.Error)
	}
	svc.logger.Info("guild storage deleted",
		zap.Int32("guild_id", guildID), zap.Int64("rows", res.RowsAffected))
	return nil
}
