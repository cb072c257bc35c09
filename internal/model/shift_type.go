package model

// ShiftType 班次类型表，对应 shift_types
type ShiftType struct {
	ID                    int     `gorm:"primaryKey"                          json:"id"`
	Name                  string  `gorm:"type:varchar(100);not null"          json:"name"`
	Abbreviation          string  `gorm:"type:varchar(10);not null;uniqueIndex" json:"abbreviation"`
	Hours                 float64 `gorm:"not null;default:0"                  json:"hours"`
	Description           string  `gorm:"type:varchar(500)"                   json:"description,omitempty"`
	Color                 string  `gorm:"type:varchar(20)"                    json:"color"`
	StartTime             *string `gorm:"type:varchar(5)"                     json:"start_time,omitempty"`
	EndTime               *string `gorm:"type:varchar(5)"                     json:"end_time,omitempty"`
	CheckForUnderstaffing bool    `gorm:"not null;default:false"              json:"check_for_understaffing"`
}

func (ShiftType) TableName() string { return "shift_types" }

// ShiftOrder 班次显示顺序，对应 shift_order
type ShiftOrder struct {
	Abbreviation string `gorm:"type:varchar(10);primaryKey" json:"abbreviation"`
	SortOrder    int    `gorm:"not null;default:0"          json:"sort_order"`
	IsVisible    bool   `gorm:"not null"                    json:"is_visible"`
}

func (ShiftOrder) TableName() string { return "shift_order" }

// ShiftTypeRow shift_types LEFT JOIN shift_order 的查询结果
type ShiftTypeRow struct {
	ShiftType
	SortOrder *int
	IsVisible *bool
}
