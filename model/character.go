package model

// Character is the persisted character record. The six view fields hold the
// sprite of whatever occupies the slot; 0 means nothing is shown.
type Character struct {
	CharID     int32  `gorm:"column:char_id;primaryKey;autoIncrement" json:"char_id"`
	AccountID  int32  `gorm:"column:account_id;index:idx_char_account;not null" json:"account_id"`
	Name       string `gorm:"column:name;uniqueIndex;size:30;not null" json:"name"`
	GuildID    int32  `gorm:"column:guild_id;not null;default:0" json:"guild_id"`
	Weapon     int32  `gorm:"column:weapon;not null;default:0" json:"weapon"`
	Shield     int32  `gorm:"column:shield;not null;default:0" json:"shield"`
	HeadTop    int32  `gorm:"column:head_top;not null;default:0" json:"head_top"`
	HeadMid    int32  `gorm:"column:head_mid;not null;default:0" json:"head_mid"`
	HeadBottom int32  `gorm:"column:head_bottom;not null;default:0" json:"head_bottom"`
	Robe       int32  `gorm:"column:robe;not null;default:0" json:"robe"`
}

func (Character) TableName() string { return "char" }
