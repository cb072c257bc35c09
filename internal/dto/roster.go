package dto

// ── 排班表模块 DTO ──

// MonthQuery 年月查询参数
type MonthQuery struct {
	Year  int `form:"year"  binding:"required,min=1900,max=9999"`
	Month int `form:"month" binding:"required,min=1,max=12"`
}

// EditCellRequest 编辑单元格请求；code 为空表示清空
type EditCellRequest struct {
	UserID int    `json:"user_id" binding:"required,min=1"`
	Date   string `json:"date"    binding:"required"`
	Code   string `json:"code"    binding:"max=10"`
}

// SetLockRequest 锁定单元格请求
type SetLockRequest struct {
	UserID int    `json:"user_id" binding:"required,min=1"`
	Date   string `json:"date"    binding:"required"`
	Code   string `json:"code"    binding:"required,max=10"`
}

// RemoveLockRequest 解除锁定请求
type RemoveLockRequest struct {
	UserID int    `json:"user_id" binding:"required,min=1"`
	Date   string `json:"date"    binding:"required"`
}

// RejectWishRequest 拒绝愿望请求
type RejectWishRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// GenerateRequest 触发生成请求
type GenerateRequest struct {
	Year  int `json:"year"  binding:"required,min=1900,max=9999"`
	Month int `json:"month" binding:"required,min=1,max=12"`
}

// CellChangeResponse 单元格变更结果
type CellChangeResponse struct {
	UserID  int    `json:"user_id"`
	Date    string `json:"date"`
	OldCode string `json:"old_code"`
	NewCode string `json:"new_code"`
}

// RemoveLockResponse 解除锁定结果
type RemoveLockResponse struct {
	Removed bool `json:"removed"`
}

// WishResponse 愿望申请状态
type WishResponse struct {
	ID              int     `json:"id"`
	UserID          int     `json:"user_id"`
	Date            string  `json:"date"`
	RequestedCode   string  `json:"requested_code"`
	Status          string  `json:"status"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
}

// WishTransitionResponse 愿望状态变更结果
type WishTransitionResponse struct {
	Wish    *WishResponse      `json:"wish,omitempty"` // 撤回后为空
	Removed bool               `json:"removed"`
	Cell    CellChangeResponse `json:"cell"`
}
