package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dienstplan/internal/model"
	"dienstplan/internal/roster"
)

// CatalogRepository 班次类型数据访问接口
type CatalogRepository interface {
	ListShiftTypes(ctx context.Context) ([]roster.ShiftType, error)
	SaveShiftOrder(ctx context.Context, order []model.ShiftOrder) error
}

type catalogRepo struct {
	db *gorm.DB
}

// NewCatalogRepo 创建 CatalogRepository 实例
func NewCatalogRepo(db *gorm.DB) CatalogRepository {
	return &catalogRepo{db: db}
}

// ListShiftTypes shift_types LEFT JOIN shift_order；无顺序记录的班次默认可见、排在最后
func (r *catalogRepo) ListShiftTypes(ctx context.Context) ([]roster.ShiftType, error) {
	var rows []model.ShiftTypeRow
	err := r.db.WithContext(ctx).Table("shift_types").
		Select("shift_types.*, shift_order.sort_order, shift_order.is_visible").
		Joins("LEFT JOIN shift_order ON shift_order.abbreviation = shift_types.abbreviation").
		Order("shift_types.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]roster.ShiftType, 0, len(rows))
	for _, row := range rows {
		st := roster.ShiftType{
			Code:               row.Abbreviation,
			Name:               row.Name,
			Hours:              row.Hours,
			Description:        row.Description,
			Color:              row.Color,
			CheckUnderstaffing: row.CheckForUnderstaffing,
			SortOrder:          999999,
			Visible:            true,
		}
		if row.StartTime != nil {
			st.StartTime = *row.StartTime
		}
		if row.EndTime != nil {
			st.EndTime = *row.EndTime
		}
		if row.SortOrder != nil {
			st.SortOrder = *row.SortOrder
		}
		if row.IsVisible != nil {
			st.Visible = *row.IsVisible
		}
		out = append(out, st)
	}
	return out, nil
}

func (r *catalogRepo) SaveShiftOrder(ctx context.Context, order []model.ShiftOrder) error {
	if len(order) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "abbreviation"}},
		DoUpdates: clause.AssignmentColumns([]string{"sort_order", "is_visible"}),
	}).Create(&order).Error
}
