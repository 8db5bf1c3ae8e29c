package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records cross-entity item movements performed by the store owner.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	CharID     *int32         `gorm:"index:idx_audit_char" json:"char_id"`
	AccountID  *int32         `json:"account_id"`
	GuildID    *int32         `gorm:"index:idx_audit_guild" json:"guild_id"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	Request    datatypes.JSON `json:"request"`
	Response   datatypes.JSON `json:"response"`
	Error      string         `gorm:"type:text" json:"error"`
	Remote     string         `gorm:"size:64" json:"remote"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_log" }
