package model

// VacationRequest 休假申请，对应 vacation_requests
type VacationRequest struct {
	ID           int    `gorm:"primaryKey"                 json:"id"`
	UserID       int    `gorm:"not null;index"             json:"user_id"`
	StartDate    string `gorm:"type:date;not null"         json:"start_date"`
	EndDate      string `gorm:"type:date;not null"         json:"end_date"`
	Status       string `gorm:"type:varchar(20);not null"  json:"status"`
	Archived     bool   `gorm:"not null;default:false"     json:"archived"`
	UserNotified bool   `gorm:"not null;default:false"     json:"user_notified"`
	BaseModel
}

func (VacationRequest) TableName() string { return "vacation_requests" }

// WunschfreiRequest 愿望申请，对应 wunschfrei_requests，(user_id, request_date) 唯一
type WunschfreiRequest struct {
	ID              int     `gorm:"primaryKey"                                         json:"id"`
	UserID          int     `gorm:"not null;uniqueIndex:uq_wunschfrei_user_date"       json:"user_id"`
	RequestDate     string  `gorm:"type:date;not null;uniqueIndex:uq_wunschfrei_user_date" json:"request_date"`
	RequestedShift  string  `gorm:"type:varchar(10);not null"                          json:"requested_shift"`
	Status          string  `gorm:"type:varchar(40);not null"                          json:"status"`
	RequestedBy     string  `gorm:"type:varchar(10);not null;default:'user'"           json:"requested_by"`
	Notified        bool    `gorm:"not null;default:false"                             json:"notified"`
	RejectionReason *string `gorm:"type:varchar(500)"                                  json:"rejection_reason,omitempty"`
	BaseModel
}

func (WunschfreiRequest) TableName() string { return "wunschfrei_requests" }
