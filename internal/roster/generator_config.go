package roster

import (
	"encoding/json"
	"errors"
	"fmt"
)

// 连续工作日上限
const (
	SoftMaxConsecutiveShifts = 6
	HardMaxConsecutiveShifts = 8
)

// 孤立班模式
const (
	IsolationFreeWorkFree = "fwf"  // 前一天休息、后一天明确休息
	IsolationLongFree     = "long" // 在 fwf 基础上，前两天连休且后天明确休息也算
)

// 预设名称
const (
	PresetBalanced       = "Balanced"
	PresetFocusMinHours  = "FocusMinHours"
	PresetFocusFairness  = "FocusFairness"
	PresetFocusIsolation = "FocusIsolation"
)

// ErrUnknownPreset 未知预设
var ErrUnknownPreset = errors.New("未知的生成器预设")

// GeneratorConfigVersion 当前配置结构版本
const GeneratorConfigVersion = 2

// GeneratorConfig 生成器全部调参项
type GeneratorConfig struct {
	Version int    `json:"version"`
	Preset  string `json:"preset,omitempty"`

	FairnessThreshold       float64 `json:"fairness_threshold"`
	FairnessMultiplier      float64 `json:"fairness_multiplier"`
	MinHoursThreshold       float64 `json:"min_hours_threshold"`
	MinHoursMultiplier      float64 `json:"min_hours_multiplier"`
	IsolationMultiplier     float64 `json:"isolation_multiplier"`
	IsolationPattern        string  `json:"isolation_pattern"`
	ConflictLookaheadDays   int     `json:"conflict_lookahead_days"`
	AvoidPartnerPenalty     float64 `json:"avoid_partner_penalty"`
	MaxConsecutiveSameShift int     `json:"max_consecutive_same_shift"`
	MandatoryRestDays       int     `json:"mandatory_rest_days"`
	WunschfreiRespectLevel  int     `json:"wunschfrei_respect_level"`
	GeneratorFillRounds     int     `json:"generator_fill_rounds"`
	AvoidUnderstaffingHard  bool    `json:"avoid_understaffing_hard"`

	PreferredPartners []PartnerPair `json:"preferred_partners,omitempty"`
	AvoidPartners     []PartnerPair `json:"avoid_partners,omitempty"`

	// Seed 非空时生成结果可复现（同一快照 + 同一配置）
	Seed *int64 `json:"seed,omitempty"`
}

// DefaultGeneratorConfig 默认（Balanced）配置
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Version:                 GeneratorConfigVersion,
		Preset:                  PresetBalanced,
		FairnessThreshold:       10,
		FairnessMultiplier:      1,
		MinHoursThreshold:       20,
		MinHoursMultiplier:      5,
		IsolationMultiplier:     1,
		IsolationPattern:        IsolationFreeWorkFree,
		ConflictLookaheadDays:   7,
		AvoidPartnerPenalty:     500,
		MaxConsecutiveSameShift: 4,
		MandatoryRestDays:       2,
		WunschfreiRespectLevel:  75,
		GeneratorFillRounds:     3,
		AvoidUnderstaffingHard:  true,
	}
}

// PresetConfig 返回命名预设
func PresetConfig(name string) (GeneratorConfig, error) {
	cfg := DefaultGeneratorConfig()
	cfg.Preset = name
	switch name {
	case PresetBalanced:
	case PresetFocusMinHours:
		cfg.MinHoursThreshold = 10
		cfg.MinHoursMultiplier = 10
	case PresetFocusFairness:
		cfg.FairnessThreshold = 5
		cfg.FairnessMultiplier = 3
	case PresetFocusIsolation:
		cfg.IsolationMultiplier = 5
		cfg.IsolationPattern = IsolationLongFree
	default:
		return GeneratorConfig{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return cfg, nil
}

// PresetNames 所有预设
func PresetNames() []string {
	return []string{PresetBalanced, PresetFocusMinHours, PresetFocusFairness, PresetFocusIsolation}
}

// Normalize 修正缺省或越界的值，旧版本配置缺失字段按默认值补齐
func (c GeneratorConfig) Normalize() GeneratorConfig {
	def := DefaultGeneratorConfig()
	if c.ConflictLookaheadDays <= 0 {
		c.ConflictLookaheadDays = def.ConflictLookaheadDays
	}
	if c.MaxConsecutiveSameShift <= 0 {
		c.MaxConsecutiveSameShift = def.MaxConsecutiveSameShift
	}
	if c.MandatoryRestDays < 0 {
		c.MandatoryRestDays = def.MandatoryRestDays
	}
	if c.GeneratorFillRounds < 0 {
		c.GeneratorFillRounds = 0
	}
	if c.GeneratorFillRounds > 3 {
		c.GeneratorFillRounds = 3
	}
	if c.IsolationPattern != IsolationFreeWorkFree && c.IsolationPattern != IsolationLongFree {
		c.IsolationPattern = def.IsolationPattern
	}
	if c.Version < GeneratorConfigVersion {
		// v1 没有尊重度与填补轮数
		if c.WunschfreiRespectLevel == 0 {
			c.WunschfreiRespectLevel = def.WunschfreiRespectLevel
		}
		if c.GeneratorFillRounds == 0 {
			c.GeneratorFillRounds = def.GeneratorFillRounds
		}
		c.Version = GeneratorConfigVersion
	}
	return c
}

// DecodeGeneratorConfig 从 JSON blob 解析；空 blob 返回默认配置
func DecodeGeneratorConfig(raw []byte) (GeneratorConfig, error) {
	if len(raw) == 0 {
		return DefaultGeneratorConfig(), nil
	}
	cfg := DefaultGeneratorConfig()
	cfg.Version = 0
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return GeneratorConfig{}, fmt.Errorf("解析生成器配置失败: %w", err)
	}
	return cfg.Normalize(), nil
}
