package model

import "time"

// BaseModel 通用审计字段
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// DateLayout 日期列的文本格式
const DateLayout = "2006-01-02"

// All 全部表模型（AutoMigrate 用）
func All() []interface{} {
	return []interface{}{
		&User{}, &UserOrder{},
		&ShiftType{}, &ShiftOrder{},
		&ShiftSchedule{}, &ShiftLock{},
		&VacationRequest{}, &WunschfreiRequest{},
		&ConfigBlob{},
	}
}
