package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"dienstplan/internal/repository"
	"dienstplan/internal/roster"
)

// ErrCatalogEmpty 数据库中没有任何班次类型
var ErrCatalogEmpty = errors.New("班次目录为空")

// CatalogCache 班次目录缓存（由 pkg/redis 实现，可为 nil）
type CatalogCache interface {
	GetCatalog(ctx context.Context) ([]byte, bool, error)
	SetCatalog(ctx context.Context, raw []byte, ttl time.Duration) error
	InvalidateCatalog(ctx context.Context) error
}

// CatalogService 班次目录业务接口
type CatalogService interface {
	// Catalog 依次尝试进程内缓存 → Redis → 数据库
	Catalog(ctx context.Context) (*roster.ShiftCatalog, error)
	// Invalidate 管理员修改班次后调用，下次读取重建目录
	Invalidate(ctx context.Context) error
}

type catalogService struct {
	repo   *repository.Repository
	cache  CatalogCache
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	current *roster.ShiftCatalog
}

// NewCatalogService 创建 CatalogService 实例
func NewCatalogService(repo *repository.Repository, cache CatalogCache, ttl time.Duration, logger *zap.Logger) CatalogService {
	return &catalogService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func (s *catalogService) Catalog(ctx context.Context) (*roster.ShiftCatalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return s.current, nil
	}

	// ── 阶段1: Redis ──
	if s.cache != nil {
		raw, ok, err := s.cache.GetCatalog(ctx)
		switch {
		case err != nil:
			s.logger.Warn("读取班次目录缓存失败，回退数据库", zap.Error(err))
		case ok:
			var types []roster.ShiftType
			if err := json.Unmarshal(raw, &types); err == nil && len(types) > 0 {
				s.current = roster.NewShiftCatalog(types)
				return s.current, nil
			}
			s.logger.Warn("班次目录缓存内容无效，回退数据库")
		}
	}

	// ── 阶段2: 数据库 ──
	types, err := s.repo.Catalog.ListShiftTypes(ctx)
	if err != nil {
		s.logger.Error("查询班次类型失败", zap.Error(err))
		return nil, err
	}
	if len(types) == 0 {
		return nil, ErrCatalogEmpty
	}
	s.current = roster.NewShiftCatalog(types)

	if s.cache != nil {
		if raw, err := json.Marshal(types); err == nil {
			if err := s.cache.SetCatalog(ctx, raw, s.ttl); err != nil {
				s.logger.Warn("写入班次目录缓存失败", zap.Error(err))
			}
		}
	}
	return s.current, nil
}

func (s *catalogService) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	if s.cache == nil {
		return nil
	}
	if err := s.cache.InvalidateCatalog(ctx); err != nil {
		s.logger.Error("清除班次目录缓存失败", zap.Error(err))
		return err
	}
	s.logger.Info("班次目录缓存已清除")
	return nil
}
