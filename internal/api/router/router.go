package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dienstplan/config"
	"dienstplan/internal/api/handler"
	"dienstplan/internal/api/middleware"
)

// maxBodyBytes 配置 blob 与编辑请求都很小
const maxBodyBytes = 1 << 20

// Setup 初始化并返回 Gin 路由引擎；limiter 为 nil 时生成接口不限流
func Setup(cfg *config.Config, h *handler.Handler, limiter middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	genLimit := middleware.RateLimit(limiter, cfg.Generator.RateLimit,
		time.Duration(cfg.Generator.RateWindowSec)*time.Second, logger)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 排班表模块
		rosters := v1.Group("/roster")
		{
			rosters.GET("", h.Roster.GetRoster)
			rosters.PUT("/cells", h.Roster.EditCell)
			rosters.PUT("/locks", h.Roster.SetLock)
			rosters.DELETE("/locks", h.Roster.RemoveLock)
			rosters.POST("/generate", genLimit, h.Roster.Generate)
			rosters.GET("/generate/:id", h.Roster.GetJob)
			rosters.POST("/wishes/:id/accept", h.Roster.AcceptWish)
			rosters.POST("/wishes/:id/reject", h.Roster.RejectWish)
			rosters.POST("/wishes/:id/withdraw", h.Roster.WithdrawWish)
		}

		// 生成器配置
		genCfg := v1.Group("/generator-config")
		{
			genCfg.GET("", h.Config.GetGeneratorConfig)
			genCfg.PUT("", h.Config.UpdateGeneratorConfig)
			genCfg.PUT("/preset/:name", h.Config.ApplyPreset)
		}

		// 人员配置规则
		v1.GET("/staffing-rules", h.Config.GetStaffingRules)
		v1.PUT("/staffing-rules", h.Config.UpdateStaffingRules)

		// 班次目录
		shiftTypes := v1.Group("/shift-types")
		{
			shiftTypes.GET("", h.Config.ListShiftTypes)
			shiftTypes.POST("/invalidate", h.Config.InvalidateShiftTypes)
		}

		// 导出模块
		export := v1.Group("/export")
		{
			export.GET("/roster", h.Export.ExportRoster)
		}
	}

	return r
}
