package storage

import (
	"context"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/item"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Table names an item table and the column that owns its rows.
type Table struct {
	Name  string
	Owner string
}

var (
	TableStorage      = Table{Name: model.StorageItem{}.TableName(), Owner: "account_id"}
	TableGuildStorage = Table{Name: model.GuildStorageItem{}.TableName(), Owner: "guild_id"}
	TableInventory    = Table{Name: model.Inventory{}.TableName(), Owner: "char_id"}
)

// itemRow scans any of the item tables.
type itemRow struct {
	ID int32 `gorm:"column:id"`
	model.ItemColumns
}

// ItemSync writes an in-memory item list over the rows an owner has in a
// table: matching rows are updated when they differ, unmatched rows are
// deleted and unmatched items are inserted. It is best-effort; a failed
// statement is counted and the remaining work still runs.
type ItemSync struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewItemSync creates an ItemSync on the shared store handle.
func NewItemSync(db *gorm.DB, logger *zap.Logger) *ItemSync {
	return &ItemSync{db: db, logger: logger}
}

// Sync returns the number of failed statements; 0 means every row landed.
func (s *ItemSync) Sync(ctx context.Context, t Table, ownerID int32, items []item.Item) int {
	db := s.db.WithContext(ctx)
	log := s.logger.With(zap.String("table", t.Name), zap.Int32(t.Owner, ownerID))

	var rows []itemRow
	if err := db.Table(t.Name).Where(t.Owner+" = ?", ownerID).Find(&rows).Error; err != nil {
		log.Error("item sync: load current rows failed", zap.Error(err))
		return 1
	}

	errCount := 0
	matched := make([]bool, len(items))
	var stale []int32
	for _, row := range rows {
		i := matchItem(items, matched, row)
		if i < 0 {
			stale = append(stale, row.ID)
			continue
		}
		matched[i] = true
		if item.SameContent(items[i], row.Item(row.ID)) {
			continue
		}
		if err := db.Table(t.Name).Where("id = ?", row.ID).
			Updates(model.ColumnsOf(items[i]).Values()).Error; err != nil {
			log.Error("item sync: update failed", zap.Int32("id", row.ID), zap.Error(err))
			errCount++
		}
	}

	if len(stale) > 0 {
		if err := db.Table(t.Name).Where("id IN ?", stale).Delete(&itemRow{}).Error; err != nil {
			log.Error("item sync: delete failed", zap.Int("rows", len(stale)), zap.Error(err))
			errCount++
		}
	}

	for i := range items {
		if matched[i] || items[i].Empty() {
			continue
		}
		values := model.ColumnsOf(items[i]).Values()
		values[t.Owner] = ownerID
		if err := db.Table(t.Name).Create(values).Error; err != nil {
			log.Error("item sync: insert failed", zap.Int32("nameid", items[i].NameID), zap.Error(err))
			errCount++
		}
	}
	return errCount
}

// matchItem finds the unmatched in-memory item that corresponds to row:
// the same row id when the item carries one, otherwise the same item type
// and card signature.
func matchItem(items []item.Item, matched []bool, row itemRow) int {
	for i := range items {
		if !matched[i] && !items[i].Empty() && items[i].ID != 0 &&
			items[i].ID == row.ID && items[i].NameID == row.NameID {
			return i
		}
	}
	for i := range items {
		it := &items[i]
		if matched[i] || it.Empty() || it.ID != 0 {
			continue
		}
		if it.NameID == row.NameID && it.Cards[0] == row.Card0 &&
			it.Cards[2] == row.Card2 && it.Cards[3] == row.Card3 {
			return i
		}
	}
	return -1
}
