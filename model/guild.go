package model

// Guild is only consulted for existence checks by the storage subsystem.
type Guild struct {
	GuildID    int32  `gorm:"column:guild_id;primaryKey;autoIncrement" json:"guild_id"`
	Name       string `gorm:"column:name;uniqueIndex;size:24;not null" json:"name"`
	MasterChar int32  `gorm:"column:char_id;not null;default:0" json:"char_id"`
}

func (Guild) TableName() string { return "guild" }
