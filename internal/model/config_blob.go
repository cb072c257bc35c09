package model

import (
	"time"

	"gorm.io/datatypes"
)

// 配置键
const (
	ConfigKeyGenerator     = "generator_config"
	ConfigKeyStaffingRules = "staffing_rules"
	ConfigKeyHolidays      = "holidays"
	ConfigKeyEvents        = "events"
	ConfigKeyUserPrefs     = "user_preferences"
	ConfigKeyRequestLocks  = "request_locks"
)

// ConfigBlob 按键存放的 JSON 配置，对应 config_blobs
type ConfigBlob struct {
	Key       string         `gorm:"column:config_key;type:varchar(64);primaryKey" json:"key"`
	Value     datatypes.JSON `gorm:"not null"                           json:"value"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ConfigBlob) TableName() string { return "config_blobs" }
