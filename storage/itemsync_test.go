package storage

import (
	"context"
	"testing"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/item"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/model"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemSync_MatchesBySignatureWhenIDUnknown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := NewItemSync(db, nop())
	ctx := context.Background()

	carded := item.Item{NameID: 1101, Amount: 1, Cards: [item.MaxSlots]int16{4001, 0, 0, 0}}
	require.Zero(t, s.Sync(ctx, TableInventory, 150000, []item.Item{carded}))

	var before model.Inventory
	require.NoError(t, db.Where("char_id = ?", 150000).First(&before).Error)

	// Same item without its row id but refined: updated in place.
	carded.Refine = 5
	require.Zero(t, s.Sync(ctx, TableInventory, 150000, []item.Item{carded}))

	var after []model.Inventory
	require.NoError(t, db.Where("char_id = ?", 150000).Find(&after).Error)
	require.Len(t, after, 1)
	assert.Equal(t, before.ID, after[0].ID)
	assert.Equal(t, uint8(5), after[0].Refine)
}

func TestItemSync_DifferentCardsIsADifferentItem(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := NewItemSync(db, nop())
	ctx := context.Background()

	a := item.Item{NameID: 1101, Amount: 1, Cards: [item.MaxSlots]int16{4001, 0, 0, 0}}
	require.Zero(t, s.Sync(ctx, TableInventory, 1, []item.Item{a}))

	b := a
	b.Cards[0] = 4002
	require.Zero(t, s.Sync(ctx, TableInventory, 1, []item.Item{b}))

	var rows []model.Inventory
	require.NoError(t, db.Where("char_id = ?", 1).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int16(4002), rows[0].Card0)
}

func TestItemSync_OwnersAreIsolated(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := NewItemSync(db, nop())
	ctx := context.Background()

	require.Zero(t, s.Sync(ctx, TableGuildStorage, 1, []item.Item{{NameID: 501, Amount: 1}}))
	require.Zero(t, s.Sync(ctx, TableGuildStorage, 2, []item.Item{{NameID: 502, Amount: 1}}))
	require.Zero(t, s.Sync(ctx, TableGuildStorage, 1, nil))

	var n int64
	db.Model(&model.GuildStorageItem{}).Where("guild_id = ?", 2).Count(&n)
	assert.Equal(t, int64(1), n)
	db.Model(&model.GuildStorageItem{}).Where("guild_id = ?", 1).Count(&n)
	assert.Zero(t, n)
}
