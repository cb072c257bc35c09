package model

// User 员工表，对应 users；Diensthund 为警犬标识，空表示无
type User struct {
	ID             int     `gorm:"primaryKey"                      json:"id"`
	Vorname        string  `gorm:"type:varchar(100)"               json:"vorname"`
	Name           string  `gorm:"type:varchar(100);not null"      json:"name"`
	Diensthund     string  `gorm:"type:varchar(50)"                json:"diensthund,omitempty"`
	ActivationDate *string `gorm:"type:date"                       json:"activation_date,omitempty"`
	IsArchived     bool    `gorm:"not null;default:false"          json:"is_archived"`
	ArchivedDate   *string `gorm:"type:date"                       json:"archived_date,omitempty"`
	BaseModel
}

func (User) TableName() string { return "users" }

// UserOrder 行顺序与可见性，对应 user_order
type UserOrder struct {
	UserID    int  `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	SortOrder int  `gorm:"not null;default:0"             json:"sort_order"`
	IsVisible bool `gorm:"not null"                       json:"is_visible"`
}

func (UserOrder) TableName() string { return "user_order" }

// EmployeeRow 员工与顺序的联表结果
type EmployeeRow struct {
	ID             int
	Vorname        string
	Name           string
	Diensthund     string
	ActivationDate *string
	IsArchived     bool
	ArchivedDate   *string
	SortOrder      *int
	IsVisible      *bool
}
