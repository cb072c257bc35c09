package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dienstplan/internal/model"
	"dienstplan/internal/planning"
	"dienstplan/internal/roster"
)

// snapshotRepo 月度快照的合并读取
type snapshotRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSnapshotRepo 创建 planning.SnapshotSource 实现
func NewSnapshotRepo(db *gorm.DB, logger *zap.Logger) planning.SnapshotSource {
	return &snapshotRepo{db: db, logger: logger}
}

// monthWindow 计划月的查询窗口
type monthWindow struct {
	prevFirst string // 上月首日
	first     string
	last      string
	nextEnd   string // 下月第二天
}

func windowOf(year int, month time.Month) monthWindow {
	py, pm := roster.PrevMonth(year, month)
	last := roster.NewDate(year, month, roster.DaysInMonth(year, month))
	return monthWindow{
		prevFirst: roster.NewDate(py, pm, 1).String(),
		first:     roster.NewDate(year, month, 1).String(),
		last:      last.String(),
		nextEnd:   last.AddDays(2).String(),
	}
}

// LoadMonthSnapshot 在同一连接上依次读取员工、锁定、排班、休假、愿望
// 坏行（日期或状态无法解析）记录告警后跳过
func (r *snapshotRepo) LoadMonthSnapshot(ctx context.Context, year int, month time.Month, progress planning.ProgressFunc) (*planning.MonthSnapshot, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	win := windowOf(year, month)
	snap := &planning.MonthSnapshot{Year: year, Month: month}

	err := r.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		// ── 阶段1: 员工 ──
		employees, err := r.loadEmployees(conn)
		if err != nil {
			return fmt.Errorf("查询员工失败: %w", err)
		}
		snap.Employees = employees
		progress(15, "员工已加载")
		if err := ctx.Err(); err != nil {
			return err
		}

		// ── 阶段2: 锁定 ──
		var locks []model.ShiftLock
		if err := conn.Where("shift_date BETWEEN ? AND ?", win.first, win.last).
			Order("user_id, shift_date").Find(&locks).Error; err != nil {
			return fmt.Errorf("查询锁定失败: %w", err)
		}
		for _, l := range locks {
			d, ok := r.parseDate("shift_locks", l.UserID, l.ShiftDate)
			if !ok {
				continue
			}
			snap.Locks = append(snap.Locks, roster.Lock{UserID: l.UserID, Date: d, Code: l.ShiftAbbrev})
		}
		progress(30, "锁定已加载")
		if err := ctx.Err(); err != nil {
			return err
		}

		// ── 阶段3: 排班（上月整月 + 本月 + 下月前两天） ──
		var shifts []model.ShiftSchedule
		if err := conn.Where("shift_date BETWEEN ? AND ?", win.prevFirst, win.nextEnd).
			Order("user_id, shift_date").Find(&shifts).Error; err != nil {
			return fmt.Errorf("查询排班失败: %w", err)
		}
		for _, s := range shifts {
			d, ok := r.parseDate("shift_schedule", s.UserID, s.ShiftDate)
			if !ok {
				continue
			}
			snap.Shifts = append(snap.Shifts, planning.ShiftRow{UserID: s.UserID, Date: d, Code: s.ShiftAbbrev})
		}
		progress(50, "排班已加载")
		if err := ctx.Err(); err != nil {
			return err
		}

		// ── 阶段4: 休假（与上月及本月有交集） ──
		var vacations []model.VacationRequest
		if err := conn.Where("start_date <= ? AND end_date >= ? AND archived = ?", win.last, win.prevFirst, false).
			Order("id").Find(&vacations).Error; err != nil {
			return fmt.Errorf("查询休假失败: %w", err)
		}
		for _, v := range vacations {
			if req, ok := r.toVacation(v); ok {
				snap.Vacations = append(snap.Vacations, req)
			}
		}
		progress(65, "休假已加载")
		if err := ctx.Err(); err != nil {
			return err
		}

		// ── 阶段5: 愿望 ──
		var wishes []model.WunschfreiRequest
		if err := conn.Where("request_date BETWEEN ? AND ?", win.prevFirst, win.last).
			Order("id").Find(&wishes).Error; err != nil {
			return fmt.Errorf("查询愿望失败: %w", err)
		}
		for _, w := range wishes {
			if req, ok := r.toWish(w); ok {
				snap.Wishes = append(snap.Wishes, req)
			}
		}
		progress(75, "愿望已加载")
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// loadEmployees users LEFT JOIN user_order，并合并个人偏好
func (r *snapshotRepo) loadEmployees(conn *gorm.DB) ([]roster.Employee, error) {
	var rows []model.EmployeeRow
	err := conn.Table("users").
		Select("users.id, users.vorname, users.name, users.diensthund, users.activation_date, " +
			"users.is_archived, users.archived_date, user_order.sort_order, user_order.is_visible").
		Joins("LEFT JOIN user_order ON user_order.user_id = users.id").
		Order("user_order.sort_order, users.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	prefs, err := r.loadPrefs(conn)
	if err != nil {
		return nil, err
	}

	out := make([]roster.Employee, 0, len(rows))
	for _, row := range rows {
		e := roster.Employee{
			ID:         row.ID,
			Surname:    row.Name,
			GivenName:  row.Vorname,
			Visible:    true,
			Archived:   row.IsArchived,
			ServiceDog: row.Diensthund,
			Prefs:      roster.DefaultPrefs(),
		}
		if row.SortOrder != nil {
			e.SortOrder = *row.SortOrder
		}
		if row.IsVisible != nil {
			e.Visible = *row.IsVisible
		}
		if row.ActivationDate != nil && *row.ActivationDate != "" {
			d, ok := r.parseDate("users.activation_date", row.ID, *row.ActivationDate)
			if !ok {
				continue
			}
			e.ActivationDate = &d
		}
		if row.ArchivedDate != nil && *row.ArchivedDate != "" {
			d, ok := r.parseDate("users.archived_date", row.ID, *row.ArchivedDate)
			if !ok {
				continue
			}
			e.ArchivedDate = &d
		}
		if p, ok := prefs[row.ID]; ok {
			e.Prefs = p
		}
		out = append(out, e)
	}
	return out, nil
}

// loadPrefs 个人偏好 blob：{"<user_id>": EmployeePrefs}
func (r *snapshotRepo) loadPrefs(conn *gorm.DB) (map[int]roster.EmployeePrefs, error) {
	var blob model.ConfigBlob
	res := conn.Where("config_key = ?", model.ConfigKeyUserPrefs).Limit(1).Find(&blob)
	if res.Error != nil {
		return nil, res.Error
	}
	out := make(map[int]roster.EmployeePrefs)
	if res.RowsAffected == 0 || len(blob.Value) == 0 {
		return out, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(blob.Value, &raw); err != nil {
		r.logger.Warn("个人偏好配置无法解析，使用默认值", zap.Error(err))
		return out, nil
	}
	for key, msg := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			r.logger.Warn("个人偏好键无效，跳过", zap.String("key", key))
			continue
		}
		p := roster.DefaultPrefs()
		if err := json.Unmarshal(msg, &p); err != nil {
			r.logger.Warn("个人偏好无法解析，使用默认值", zap.Int("user_id", id), zap.Error(err))
			continue
		}
		out[id] = p
	}
	return out, nil
}

func (r *snapshotRepo) parseDate(source string, userID int, s string) (roster.Date, bool) {
	d, err := roster.ParseDate(s)
	if err != nil {
		r.logger.Warn("跳过日期无效的记录",
			zap.String("source", source),
			zap.Int("user_id", userID),
			zap.String("value", s))
		return roster.Date{}, false
	}
	return d, true
}

func (r *snapshotRepo) toVacation(v model.VacationRequest) (roster.VacationRequest, bool) {
	start, ok := r.parseDate("vacation_requests.start_date", v.UserID, v.StartDate)
	if !ok {
		return roster.VacationRequest{}, false
	}
	end, ok := r.parseDate("vacation_requests.end_date", v.UserID, v.EndDate)
	if !ok {
		return roster.VacationRequest{}, false
	}
	status, err := roster.ParseVacationStatus(v.Status)
	if err != nil {
		r.logger.Warn("跳过状态无效的休假申请", zap.Int("id", v.ID), zap.String("status", v.Status))
		return roster.VacationRequest{}, false
	}
	if end.Before(start) {
		r.logger.Warn("跳过起止日期颠倒的休假申请", zap.Int("id", v.ID))
		return roster.VacationRequest{}, false
	}
	return roster.VacationRequest{
		ID: v.ID, UserID: v.UserID, StartDate: start, EndDate: end, Status: status, Archived: v.Archived,
	}, true
}

func (r *snapshotRepo) toWish(w model.WunschfreiRequest) (roster.WishRequest, bool) {
	d, ok := r.parseDate("wunschfrei_requests.request_date", w.UserID, w.RequestDate)
	if !ok {
		return roster.WishRequest{}, false
	}
	// 班次是否存在由 PDM 决定，这里只校验结构
	req, err := roster.NewWishRequest(w.ID, w.UserID, d, w.RequestedShift, w.Status, w.RequestedBy, w.RejectionReason, nil)
	if err != nil {
		r.logger.Warn("跳过无效的愿望申请", zap.Int("id", w.ID), zap.Error(err))
		return roster.WishRequest{}, false
	}
	return req, true
}
