package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"dienstplan/internal/dto"
	"dienstplan/internal/planning"
	"dienstplan/internal/roster"
	"dienstplan/internal/service"
	pkgerrors "dienstplan/pkg/errors"
	"dienstplan/pkg/response"
)

// RosterHandler 排班表模块 HTTP 处理器
type RosterHandler struct {
	rosterSvc service.RosterService
}

// NewRosterHandler 创建 RosterHandler
func NewRosterHandler(rosterSvc service.RosterService) *RosterHandler {
	return &RosterHandler{rosterSvc: rosterSvc}
}

// GetRoster 获取计划月排班表（未加载时先加载）
// GET /api/v1/roster?year=2025&month=3
func (h *RosterHandler) GetRoster(c *gin.Context) {
	year, month, ok := MustGetMonth(c)
	if !ok {
		return
	}

	rv, err := h.rosterSvc.View(c.Request.Context(), year, month)
	if err != nil {
		h.handleRosterError(c, err)
		return
	}

	response.OK(c, rv)
}

// EditCell 编辑单元格
// PUT /api/v1/roster/cells
func (h *RosterHandler) EditCell(c *gin.Context) {
	var req dto.EditCellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	d, ok := MustParseDate(c, req.Date)
	if !ok {
		return
	}

	change, err := h.rosterSvc.EditCell(c.Request.Context(), req.UserID, d, req.Code)
	if err != nil {
		h.handleRosterError(c, err)
		return
	}

	response.OK(c, toCellChangeResponse(change))
}

// SetLock 锁定单元格
// PUT /api/v1/roster/locks
func (h *RosterHandler) SetLock(c *gin.Context) {
	var req dto.SetLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	d, ok := MustParseDate(c, req.Date)
	if !ok {
		return
	}

	change, err := h.rosterSvc.SetLock(c.Request.Context(), req.UserID, d, req.Code)
	if err != nil {
		h.handleRosterError(c, err)
		return
	}

	response.OK(c, toCellChangeResponse(change))
}

// RemoveLock 解除锁定
// DELETE /api/v1/roster/locks
func (h *RosterHandler) RemoveLock(c *gin.Context) {
	var req dto.RemoveLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	d, ok := MustParseDate(c, req.Date)
	if !ok {
		return
	}

	removed, err := h.rosterSvc.RemoveLock(c.Request.Context(), req.UserID, d)
	if err != nil {
		h.handleRosterError(c, err)
		return
	}

	response.OK(c, dto.RemoveLockResponse{Removed: removed})
}

// Generate 启动后台排班生成
// POST /api/v1/roster/generate
func (h *RosterHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	job, err := h.rosterSvc.StartGeneration(c.Request.Context(), req.Year, time.Month(req.Month))
	if err != nil {
		h.handleRosterError(c, err)
		return
	}

	response.Accepted(c, job)
}

// GetJob 查询生成任务
// GET /api/v1/roster/generate/:id
func (h *RosterHandler) GetJob(c *gin.Context) {
	job, err := h.rosterSvc.Job(c.Param("id"))
	if err != nil {
		h.handleRosterError(c, err)
		return
	}

	response.OK(c, job)
}

// AcceptWish 接受愿望申请
// POST /api/v1/roster/wishes/:id/accept
func (h *RosterHandler) AcceptWish(c *gin.Context) {
	id, ok := MustGetIntParam(c, "id")
	if !ok {
		return
	}

	tr, err := h.rosterSvc.AcceptWish(c.Request.Context(), id)
	if err != nil {
		h.handleRosterError(c, err)
		return
	}

	response.OK(c, toWishTransitionResponse(tr))
}

// RejectWish 拒绝愿望申请
// POST /api/v1/roster/wishes/:id/reject
func (h *RosterHandler) RejectWish(c *gin.Context) {
	id, ok := MustGetIntParam(c, "id")
	if !ok {
		return
	}
	var req dto.RejectWishRequest
	// 请求体可省略
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
	}

	tr, err := h.rosterSvc.RejectWish(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.handleRosterError(c, err)
		return
	}

	response.OK(c, toWishTransitionResponse(tr))
}

// WithdrawWish 撤回愿望申请
// POST /api/v1/roster/wishes/:id/withdraw
func (h *RosterHandler) WithdrawWish(c *gin.Context) {
	id, ok := MustGetIntParam(c, "id")
	if !ok {
		return
	}

	tr, err := h.rosterSvc.WithdrawWish(c.Request.Context(), id)
	if err != nil {
		h.handleRosterError(c, err)
		return
	}

	response.OK(c, toWishTransitionResponse(tr))
}

// ── 转换 ──

func toCellChangeResponse(ch planning.CellChange) dto.CellChangeResponse {
	return dto.CellChangeResponse{
		UserID:  ch.UserID,
		Date:    ch.Date.String(),
		OldCode: ch.OldCode,
		NewCode: ch.NewCode,
	}
}

func toWishTransitionResponse(tr planning.WishTransition) dto.WishTransitionResponse {
	resp := dto.WishTransitionResponse{
		Removed: tr.Removed,
		Cell:    toCellChangeResponse(tr.Cell),
	}
	if !tr.Removed {
		w := tr.After
		resp.Wish = &dto.WishResponse{
			ID:              w.ID,
			UserID:          w.UserID,
			Date:            w.Date.String(),
			RequestedCode:   w.RequestedCode,
			Status:          string(w.Status),
			RejectionReason: w.RejectionReason,
		}
	}
	return resp
}

// handleRosterError 统一处理排班表模块业务错误
func (h *RosterHandler) handleRosterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidMonth):
		response.BadRequest(c, 20001, "年月无效")
	case errors.Is(err, roster.ErrUnknownShift):
		response.BadRequest(c, 20002, "未知的班次代码")
	case errors.Is(err, planning.ErrLockMismatch):
		response.BadRequest(c, 20003, "锁定代码不能为空")
	case errors.Is(err, service.ErrEmployeeNotInMonth):
		response.BadRequest(c, 20004, "员工或日期不在当前计划月内")
	case errors.Is(err, pkgerrors.ErrCellLocked):
		response.Conflict(c, 20005, "该单元格已锁定，不可修改")
	case errors.Is(err, pkgerrors.ErrLoadCancelled):
		response.Conflict(c, 20006, "加载已被新的请求取代")
	case errors.Is(err, pkgerrors.ErrMonthNotLoaded):
		response.Conflict(c, 20007, "计划月尚未加载")
	case errors.Is(err, service.ErrGenerationRunning):
		response.Conflict(c, 20008, "该月排班生成正在进行")
	case errors.Is(err, service.ErrWishNotFound):
		response.NotFound(c, 20009, "愿望申请不存在")
	case errors.Is(err, service.ErrJobNotFound):
		response.NotFound(c, 20010, "生成任务不存在")
	case errors.Is(err, service.ErrCatalogEmpty):
		response.Conflict(c, 20011, "班次目录为空")
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
