package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dienstplan/internal/dto"
	"dienstplan/internal/roster"
	"dienstplan/internal/service"
	"dienstplan/pkg/response"
)

// ConfigHandler 生成器配置、人员配置规则与班次目录
type ConfigHandler struct {
	configSvc  service.ConfigService
	catalogSvc service.CatalogService
}

// NewConfigHandler 创建 ConfigHandler
func NewConfigHandler(configSvc service.ConfigService, catalogSvc service.CatalogService) *ConfigHandler {
	return &ConfigHandler{configSvc: configSvc, catalogSvc: catalogSvc}
}

// GetGeneratorConfig 获取生成器配置
// GET /api/v1/generator-config
func (h *ConfigHandler) GetGeneratorConfig(c *gin.Context) {
	cfg, err := h.configSvc.GeneratorConfig(c.Request.Context())
	if err != nil {
		h.handleConfigError(c, err)
		return
	}

	response.OK(c, cfg)
}

// UpdateGeneratorConfig 保存生成器配置
// PUT /api/v1/generator-config
func (h *ConfigHandler) UpdateGeneratorConfig(c *gin.Context) {
	var req roster.GeneratorConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	cfg, err := h.configSvc.SaveGeneratorConfig(c.Request.Context(), req)
	if err != nil {
		h.handleConfigError(c, err)
		return
	}

	response.OK(c, cfg)
}

// ApplyPreset 套用预设（保留搭档关系与随机种子）
// PUT /api/v1/generator-config/preset/:name
func (h *ConfigHandler) ApplyPreset(c *gin.Context) {
	cfg, err := h.configSvc.ApplyPreset(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.handleConfigError(c, err)
		return
	}

	response.OK(c, cfg)
}

// GetStaffingRules 获取人员配置规则
// GET /api/v1/staffing-rules
func (h *ConfigHandler) GetStaffingRules(c *gin.Context) {
	rules, err := h.configSvc.StaffingRuleSet(c.Request.Context())
	if err != nil {
		h.handleConfigError(c, err)
		return
	}

	response.OK(c, rules)
}

// UpdateStaffingRules 保存人员配置规则
// PUT /api/v1/staffing-rules
func (h *ConfigHandler) UpdateStaffingRules(c *gin.Context) {
	var req roster.StaffingRuleSet
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	if err := h.configSvc.SaveStaffingRuleSet(c.Request.Context(), req); err != nil {
		h.handleConfigError(c, err)
		return
	}

	response.OK(c, req)
}

// ListShiftTypes 班次目录（按排序）
// GET /api/v1/shift-types?visible=true
func (h *ConfigHandler) ListShiftTypes(c *gin.Context) {
	catalog, err := h.catalogSvc.Catalog(c.Request.Context())
	if err != nil {
		h.handleConfigError(c, err)
		return
	}

	response.OK(c, dto.ShiftTypeListResponse{List: catalog.Ordered(c.Query("visible") == "true")})
}

// InvalidateShiftTypes 丢弃目录缓存，下次加载月份时重新读取
// POST /api/v1/shift-types/invalidate
func (h *ConfigHandler) InvalidateShiftTypes(c *gin.Context) {
	if err := h.catalogSvc.Invalidate(c.Request.Context()); err != nil {
		h.handleConfigError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleConfigError 统一处理配置模块业务错误
func (h *ConfigHandler) handleConfigError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, roster.ErrUnknownPreset):
		response.NotFound(c, 30001, "未知的生成器预设")
	case errors.Is(err, service.ErrInvalidRuleSet):
		response.ErrorWithDetails(c, http.StatusBadRequest, 30002, "人员配置规则无效", err.Error())
	case errors.Is(err, service.ErrConfigCorrupt):
		response.InternalError(c)
	case errors.Is(err, service.ErrCatalogEmpty):
		response.NotFound(c, 30003, "班次目录为空")
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
