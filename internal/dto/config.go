package dto

import "dienstplan/internal/roster"

// ── 配置模块 DTO ──

// ShiftTypeListResponse 班次目录
type ShiftTypeListResponse struct {
	List []roster.ShiftType `json:"list"`
}
