package repository

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dienstplan/internal/planning"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	Snapshot planning.SnapshotSource
	Schedule ScheduleRepository
	Catalog  CatalogRepository
	Config   ConfigRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB, logger *zap.Logger) *Repository {
	return &Repository{
		Snapshot: NewSnapshotRepo(db, logger),
		Schedule: NewScheduleRepo(db),
		Catalog:  NewCatalogRepo(db),
		Config:   NewConfigRepo(db),
	}
}
