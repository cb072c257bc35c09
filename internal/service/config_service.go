package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dienstplan/internal/model"
	"dienstplan/internal/repository"
	"dienstplan/internal/roster"
)

// ── 配置模块业务错误 ──

var (
	ErrConfigCorrupt  = errors.New("配置内容无法解析")
	ErrInvalidRuleSet = errors.New("人员配置规则无效")
)

// DefaultStaffingRuleSet 未配置时的最低在岗人数
func DefaultStaffingRuleSet() roster.StaffingRuleSet {
	return roster.StaffingRuleSet{
		Daily:   map[string]int{roster.CodeDay: 2, roster.CodeNight: 2},
		MonThu:  map[string]int{},
		Friday:  map[string]int{roster.CodeFriday: 1},
		Weekend: map[string]int{},
		Holiday: map[string]int{},
	}
}

// ConfigService 运行期配置（config_blobs）业务接口
type ConfigService interface {
	GeneratorConfig(ctx context.Context) (roster.GeneratorConfig, error)
	SaveGeneratorConfig(ctx context.Context, cfg roster.GeneratorConfig) (roster.GeneratorConfig, error)
	// ApplyPreset 以预设覆盖调参项，保留搭档关系与种子
	ApplyPreset(ctx context.Context, name string) (roster.GeneratorConfig, error)

	StaffingRuleSet(ctx context.Context) (roster.StaffingRuleSet, error)
	SaveStaffingRuleSet(ctx context.Context, rules roster.StaffingRuleSet) error
	// StaffingRules 规则 + 节假日 + 活动日历
	StaffingRules(ctx context.Context) (*roster.StaffingRules, error)
}

type configService struct {
	repo          *repository.Repository
	defaultPreset string
	logger        *zap.Logger
}

// NewConfigService 创建 ConfigService 实例
func NewConfigService(repo *repository.Repository, defaultPreset string, logger *zap.Logger) ConfigService {
	return &configService{repo: repo, defaultPreset: defaultPreset, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// 生成器配置
// ═══════════════════════════════════════════════════════════

func (s *configService) GeneratorConfig(ctx context.Context) (roster.GeneratorConfig, error) {
	raw, err := s.repo.Config.Get(ctx, model.ConfigKeyGenerator)
	if err != nil {
		s.logger.Error("读取生成器配置失败", zap.Error(err))
		return roster.GeneratorConfig{}, err
	}
	if raw == nil {
		// 未保存过配置时按进程默认预设
		if cfg, err := roster.PresetConfig(s.defaultPreset); err == nil {
			return cfg, nil
		}
		return roster.DefaultGeneratorConfig(), nil
	}
	cfg, err := roster.DecodeGeneratorConfig(raw)
	if err != nil {
		s.logger.Warn("生成器配置无法解析，使用默认值", zap.Error(err))
		return roster.DefaultGeneratorConfig(), nil
	}
	return cfg, nil
}

func (s *configService) SaveGeneratorConfig(ctx context.Context, cfg roster.GeneratorConfig) (roster.GeneratorConfig, error) {
	cfg.Version = roster.GeneratorConfigVersion
	cfg = cfg.Normalize()
	raw, err := json.Marshal(cfg)
	if err != nil {
		return roster.GeneratorConfig{}, err
	}
	if err := s.repo.Config.Put(ctx, model.ConfigKeyGenerator, raw); err != nil {
		s.logger.Error("保存生成器配置失败", zap.Error(err))
		return roster.GeneratorConfig{}, err
	}
	return cfg, nil
}

func (s *configService) ApplyPreset(ctx context.Context, name string) (roster.GeneratorConfig, error) {
	preset, err := roster.PresetConfig(name)
	if err != nil {
		return roster.GeneratorConfig{}, err
	}
	current, err := s.GeneratorConfig(ctx)
	if err != nil {
		return roster.GeneratorConfig{}, err
	}
	preset.PreferredPartners = current.PreferredPartners
	preset.AvoidPartners = current.AvoidPartners
	preset.Seed = current.Seed
	return s.SaveGeneratorConfig(ctx, preset)
}

// ═══════════════════════════════════════════════════════════
// 人员配置规则
// ═══════════════════════════════════════════════════════════

func (s *configService) StaffingRuleSet(ctx context.Context) (roster.StaffingRuleSet, error) {
	raw, err := s.repo.Config.Get(ctx, model.ConfigKeyStaffingRules)
	if err != nil {
		return roster.StaffingRuleSet{}, err
	}
	if raw == nil {
		return DefaultStaffingRuleSet(), nil
	}
	var rules roster.StaffingRuleSet
	if err := json.Unmarshal(raw, &rules); err != nil {
		s.logger.Error("人员配置规则无法解析", zap.Error(err))
		return roster.StaffingRuleSet{}, fmt.Errorf("%w: %s", ErrConfigCorrupt, model.ConfigKeyStaffingRules)
	}
	return rules, nil
}

func (s *configService) SaveStaffingRuleSet(ctx context.Context, rules roster.StaffingRuleSet) error {
	if err := validateRuleSet(rules); err != nil {
		return err
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		return err
	}
	return s.repo.Config.Put(ctx, model.ConfigKeyStaffingRules, raw)
}

func validateRuleSet(rules roster.StaffingRuleSet) error {
	buckets := []map[string]int{rules.Daily, rules.MonThu, rules.Friday, rules.Weekend, rules.Holiday}
	for _, m := range rules.EventOverrides {
		buckets = append(buckets, m)
	}
	for _, b := range buckets {
		for code, n := range b {
			if code == "" || n < 0 {
				return fmt.Errorf("%w: %q=%d", ErrInvalidRuleSet, code, n)
			}
		}
	}
	return nil
}

func (s *configService) StaffingRules(ctx context.Context) (*roster.StaffingRules, error) {
	rules, err := s.StaffingRuleSet(ctx)
	if err != nil {
		return nil, err
	}
	holidays, err := s.calendar(ctx, model.ConfigKeyHolidays)
	if err != nil {
		return nil, err
	}
	events, err := s.calendar(ctx, model.ConfigKeyEvents)
	if err != nil {
		return nil, err
	}
	return roster.NewStaffingRules(rules, holidays, events), nil
}

// calendar 日历 blob：{"2025-03-07": "名称或活动类型"}；无法解析的日期跳过
func (s *configService) calendar(ctx context.Context, key string) (map[roster.Date]string, error) {
	raw, err := s.repo.Config.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make(map[roster.Date]string)
	if raw == nil {
		return out, nil
	}
	var entries map[string]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.logger.Warn("日历配置无法解析，忽略", zap.String("key", key), zap.Error(err))
		return out, nil
	}
	for k, v := range entries {
		d, err := roster.ParseDate(k)
		if err != nil {
			s.logger.Warn("跳过无效的日历日期", zap.String("key", key), zap.String("date", k))
			continue
		}
		out[d] = v
	}
	return out, nil
}
