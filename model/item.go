package model

import "github.com/kasuganosora/rpgmakermvmmo/charserver/item"

// ItemColumns holds the item attributes shared by the storage,
// guild_storage and inventory tables.
type ItemColumns struct {
	NameID     int32  `gorm:"column:nameid;index;not null;default:0" json:"nameid"`
	Amount     int16  `gorm:"column:amount;not null;default:0" json:"amount"`
	Equip      uint16 `gorm:"column:equip;not null;default:0" json:"equip"`
	Identify   bool   `gorm:"column:identify;not null;default:false" json:"identify"`
	Refine     uint8  `gorm:"column:refine;not null;default:0" json:"refine"`
	Attribute  uint8  `gorm:"column:attribute;not null;default:0" json:"attribute"`
	ExpireTime uint32 `gorm:"column:expire_time;not null;default:0" json:"expire_time"`
	Bound      uint8  `gorm:"column:bound;not null;default:0" json:"bound"`
	UniqueID   uint64 `gorm:"column:unique_id;not null;default:0" json:"unique_id"`
	Card0      int16  `gorm:"column:card0;not null;default:0" json:"card0"`
	Card1      int16  `gorm:"column:card1;not null;default:0" json:"card1"`
	Card2      int16  `gorm:"column:card2;not null;default:0" json:"card2"`
	Card3      int16  `gorm:"column:card3;not null;default:0" json:"card3"`
}

// ColumnsOf flattens an item into its column values.
func ColumnsOf(it item.Item) ItemColumns {
	return ItemColumns{
		NameID:     it.NameID,
		Amount:     it.Amount,
		Equip:      uint16(it.Equip),
		Identify:   it.Identify,
		Refine:     it.Refine,
		Attribute:  it.Attribute,
		ExpireTime: it.ExpireTime,
		Bound:      uint8(it.Bound),
		UniqueID:   it.UniqueID,
		Card0:      it.Cards[0],
		Card1:      it.Cards[1],
		Card2:      it.Cards[2],
		Card3:      it.Cards[3],
	}
}

// Item rebuilds the domain item for the row identified by id.
func (c ItemColumns) Item(id int32) item.Item {
	return item.Item{
		ID:         id,
		NameID:     c.NameID,
		Amount:     c.Amount,
		Equip:      item.EquipMask(c.Equip),
		Identify:   c.Identify,
		Refine:     c.Refine,
		Attribute:  c.Attribute,
		ExpireTime: c.ExpireTime,
		Bound:      item.BoundKind(c.Bound),
		UniqueID:   c.UniqueID,
		Cards:      [item.MaxSlots]int16{c.Card0, c.Card1, c.Card2, c.Card3},
	}
}

// StorageItem is one row of an account's personal storage.
type StorageItem struct {
	ID        int32 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AccountID int32 `gorm:"column:account_id;index:idx_storage_account;not null" json:"account_id"`
	ItemColumns
}

func (StorageItem) TableName() string { return "storage" }

// GuildStorageItem is one row of a guild's shared storage.
type GuildStorageItem struct {
	ID      int32 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	GuildID int32 `gorm:"column:guild_id;index:idx_guild_storage_guild;not null" json:"guild_id"`
	ItemColumns
}

func (GuildStorageItem) TableName() string { return "guild_storage" }

// Inventory is one row of a character's bag.
type Inventory struct {
	ID     int32 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CharID int32 `gorm:"column:char_id;index:idx_inventory_char;not null" json:"char_id"`
	ItemColumns
}

func (Inventory) TableName() string { return "inventory" }

// Values returns the columns as an update/insert map. Zero values are kept,
// unlike struct-based Updates.
func (c ItemColumns) Values() map[string]interface{} {
	return map[string]interface{}{
		"nameid":      c.NameID,
		"amount":      c.Amount,
		"equip":       c.Equip,
		"identify":    c.Identify,
		"refine":      c.Refine,
		"attribute":   c.Attribute,
		"expire_time": c.ExpireTime,
		"bound":       c.Bound,
		"unique_id":   c.UniqueID,
		"card0":       c.Card0,
		"card1":       c.Card1,
		"card2":       c.Card2,
		"card3":       c.Card3,
	}
}
