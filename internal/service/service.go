package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dienstplan/config"
	"dienstplan/internal/pipeline"
	"dienstplan/internal/repository"
	"dienstplan/internal/roster"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Catalog CatalogService
	Config  ConfigService
	Roster  RosterService
	Export  ExportService
}

// NewService 创建 Service 聚合；cache 为 nil 时不使用 Redis 缓存
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	cache CatalogCache,
	main pipeline.MainThread,
	logger *zap.Logger,
) *Service {
	catalog := NewCatalogService(repo, cache, cfg.Redis.CatalogTTL, logger)
	conf := NewConfigService(repo, cfg.Generator.DefaultPreset, logger)
	rs := NewRosterService(repo, catalog, conf, main, RosterOptions{
		Pipeline: pipeline.Options{
			Debounce:     cfg.Pipeline.SecondaryDebounce(),
			QueueWarnAt:  cfg.Pipeline.ConflictQueueSize,
			WriteTimeout: cfg.Pipeline.WriteTimeout(),
		},
		JobTTL: time.Duration(cfg.Generator.JobTTLMinutes) * time.Minute,
	}, logger)
	return &Service{
		Catalog: &refreshingCatalog{CatalogService: catalog, roster: rs, logger: logger},
		Config:  &refreshingConfig{ConfigService: conf, roster: rs, logger: logger},
		Roster:  rs,
		Export:  NewExportService(rs, logger),
	}
}

// ═══════════════════════════════════════════════════════════
// 配置变更后刷新已加载的计划月
// ═══════════════════════════════════════════════════════════

// refreshAfter 保存成功后让计划月改用新配置；刷新失败只记日志，保存结果不受影响
func refreshAfter(ctx context.Context, rs RosterService, logger *zap.Logger, what string) {
	if err := rs.RefreshConfig(ctx); err != nil {
		logger.Warn("配置已保存，但计划月刷新失败", zap.String("what", what), zap.Error(err))
	}
}

type refreshingConfig struct {
	ConfigService
	roster RosterService
	logger *zap.Logger
}

func (c *refreshingConfig) SaveGeneratorConfig(ctx context.Context, cfg roster.GeneratorConfig) (roster.GeneratorConfig, error) {
	saved, err := c.ConfigService.SaveGeneratorConfig(ctx, cfg)
	if err == nil {
		refreshAfter(ctx, c.roster, c.logger, "generator_config")
	}
	return saved, err
}

func (c *refreshingConfig) ApplyPreset(ctx context.Context, name string) (roster.GeneratorConfig, error) {
	saved, err := c.ConfigService.ApplyPreset(ctx, name)
	if err == nil {
		refreshAfter(ctx, c.roster, c.logger, "preset")
	}
	return saved, err
}

func (c *refreshingConfig) SaveStaffingRuleSet(ctx context.Context, rules roster.StaffingRuleSet) error {
	err := c.ConfigService.SaveStaffingRuleSet(ctx, rules)
	if err == nil {
		refreshAfter(ctx, c.roster, c.logger, "staffing_rules")
	}
	return err
}

type refreshingCatalog struct {
	CatalogService
	roster RosterService
	logger *zap.Logger
}

func (c *refreshingCatalog) Invalidate(ctx context.Context) error {
	err := c.CatalogService.Invalidate(ctx)
	if err == nil {
		refreshAfter(ctx, c.roster, c.logger, "shift_catalog")
	}
	return err
}
