package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dienstplan/internal/model"
)

// ConfigRepository 配置 blob 数据访问接口
type ConfigRepository interface {
	// Get 键不存在时返回 nil, nil
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

type configRepo struct {
	db *gorm.DB
}

// NewConfigRepo 创建 ConfigRepository 实例
func NewConfigRepo(db *gorm.DB) ConfigRepository {
	return &configRepo{db: db}
}

func (r *configRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var blob model.ConfigBlob
	res := r.db.WithContext(ctx).Where("config_key = ?", key).Limit(1).Find(&blob)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return []byte(blob.Value), nil
}

func (r *configRepo) Put(ctx context.Context, key string, value []byte) error {
	blob := model.ConfigBlob{Key: key, Value: datatypes.JSON(value), UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "config_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&blob).Error
}
