package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dienstplan/internal/model"
	"dienstplan/internal/planning"
	"dienstplan/internal/roster"
)

// upsertChunk 单条 INSERT 的最大行数
const upsertChunk = 500

// ScheduleRepository 排班、锁定与愿望状态的写入
type ScheduleRepository interface {
	// BatchUpsert 整月批量写入，(user_id, shift_date) 冲突时更新代码；只写计划月内的行
	BatchUpsert(ctx context.Context, year int, month time.Month, rows []planning.ShiftRow) (int64, error)
	UpsertShift(ctx context.Context, userID int, d roster.Date, code string) error
	UpsertLock(ctx context.Context, userID int, d roster.Date, code string) error
	DeleteLock(ctx context.Context, userID int, d roster.Date) error
	SaveWishTransition(ctx context.Context, tr planning.WishTransition) error
	ListMonth(ctx context.Context, year int, month time.Month) ([]model.ShiftSchedule, error)
}

type scheduleRepo struct {
	db *gorm.DB
}

// NewScheduleRepo 创建 ScheduleRepository 实例
func NewScheduleRepo(db *gorm.DB) ScheduleRepository {
	return &scheduleRepo{db: db}
}

func onConflictCode() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "shift_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"shift_abbrev"}),
	}
}

func (r *scheduleRepo) BatchUpsert(ctx context.Context, year int, month time.Month, rows []planning.ShiftRow) (int64, error) {
	batch := make([]model.ShiftSchedule, 0, len(rows))
	for _, row := range rows {
		if row.Code == "" || !row.Date.InMonth(year, month) {
			continue
		}
		batch = append(batch, model.ShiftSchedule{UserID: row.UserID, ShiftDate: row.Date.String(), ShiftAbbrev: row.Code})
	}
	if len(batch) == 0 {
		return 0, nil
	}

	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(batch); start += upsertChunk {
			end := min(start+upsertChunk, len(batch))
			chunk := batch[start:end]
			res := tx.Clauses(onConflictCode()).Create(&chunk)
			if res.Error != nil {
				return res.Error
			}
			affected += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("批量写入排班失败: %w", err)
	}
	return affected, nil
}

func (r *scheduleRepo) UpsertShift(ctx context.Context, userID int, d roster.Date, code string) error {
	return upsertShift(r.db.WithContext(ctx), userID, d, code)
}

// upsertShift 代码为空时删除该行
func upsertShift(db *gorm.DB, userID int, d roster.Date, code string) error {
	if code == "" {
		return db.Where("user_id = ? AND shift_date = ?", userID, d.String()).
			Delete(&model.ShiftSchedule{}).Error
	}
	row := model.ShiftSchedule{UserID: userID, ShiftDate: d.String(), ShiftAbbrev: code}
	return db.Clauses(onConflictCode()).Create(&row).Error
}

func (r *scheduleRepo) UpsertLock(ctx context.Context, userID int, d roster.Date, code string) error {
	row := model.ShiftLock{UserID: userID, ShiftDate: d.String(), ShiftAbbrev: code}
	return r.db.WithContext(ctx).Clauses(onConflictCode()).Create(&row).Error
}

func (r *scheduleRepo) DeleteLock(ctx context.Context, userID int, d roster.Date) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND shift_date = ?", userID, d.String()).
		Delete(&model.ShiftLock{}).Error
}

// SaveWishTransition 愿望状态与格子体现在同一事务内写入
func (r *scheduleRepo) SaveWishTransition(ctx context.Context, tr planning.WishTransition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w := tr.Before
		if tr.Removed {
			if err := tx.Where("id = ?", w.ID).Delete(&model.WunschfreiRequest{}).Error; err != nil {
				return err
			}
		} else {
			res := tx.Model(&model.WunschfreiRequest{}).
				Where("id = ?", w.ID).
				Updates(map[string]interface{}{
					"status":           string(tr.After.Status),
					"rejection_reason": tr.After.RejectionReason,
					"notified":         false,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: %d", planning.ErrWishNotFound, w.ID)
			}
		}
		if tr.Cell.Changed() {
			return upsertShift(tx, tr.Cell.UserID, tr.Cell.Date, tr.Cell.NewCode)
		}
		return nil
	})
}

func (r *scheduleRepo) ListMonth(ctx context.Context, year int, month time.Month) ([]model.ShiftSchedule, error) {
	win := windowOf(year, month)
	var rows []model.ShiftSchedule
	err := r.db.WithContext(ctx).
		Where("shift_date BETWEEN ? AND ?", win.first, win.last).
		Order("user_id, shift_date").
		Find(&rows).Error
	return rows, err
}
