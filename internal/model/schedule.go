package model

import "time"

// ShiftSchedule 排班表，对应 shift_schedule，(user_id, shift_date) 唯一
// 日期列按文本读取，加载时再解析，坏行跳过
type ShiftSchedule struct {
	UserID      int    `gorm:"primaryKey;autoIncrement:false"  json:"user_id"`
	ShiftDate   string `gorm:"type:date;primaryKey"            json:"shift_date"`
	ShiftAbbrev string `gorm:"type:varchar(10);not null"       json:"shift_abbrev"`
}

func (ShiftSchedule) TableName() string { return "shift_schedule" }

// ShiftLock 锁定表，对应 shift_locks，键与 shift_schedule 相同
type ShiftLock struct {
	UserID      int       `gorm:"primaryKey;autoIncrement:false"     json:"user_id"`
	ShiftDate   string    `gorm:"type:date;primaryKey"               json:"shift_date"`
	ShiftAbbrev string    `gorm:"type:varchar(10);not null"          json:"shift_abbrev"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ShiftLock) TableName() string { return "shift_locks" }
