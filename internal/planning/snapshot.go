package planning

import (
	"context"
	"time"

	"dienstplan/internal/roster"
)

// ProgressFunc 加载进度回调（0-100）
type ProgressFunc func(percent int, message string)

// ShiftRow 一条排班记录
type ShiftRow struct {
	UserID int
	Date   roster.Date
	Code   string
}

// MonthSnapshot 一次合并查询得到的月度原始数据
// Shifts 覆盖上月整月、本月、下月前两天
type MonthSnapshot struct {
	Year      int
	Month     time.Month
	Employees []roster.Employee
	Locks     []roster.Lock
	Shifts    []ShiftRow
	Vacations []roster.VacationRequest
	Wishes    []roster.WishRequest
}

// SnapshotSource 月度快照数据源（由 repository 实现）
type SnapshotSource interface {
	LoadMonthSnapshot(ctx context.Context, year int, month time.Month, progress ProgressFunc) (*MonthSnapshot, error)
}

// Cell 违规标记的单元格（员工 + 当月第几天）
type Cell struct {
	UserID int
	Day    int
}

// PlanState 交给生成器的深拷贝状态，生成器可随意修改
type PlanState struct {
	Year      int
	Month     time.Month
	Employees []roster.Employee
	Schedule  ShiftGrid
	PrevMonth ShiftGrid
	NextMonth ShiftGrid
	Vacations map[int]map[roster.Date]roster.VacationStatus
	Wishes    map[int]map[roster.Date]roster.WishRequest
	Locks     *roster.LockStore
}

// VacationOn 某日的休假状态
func (p *PlanState) VacationOn(userID int, d roster.Date) (roster.VacationStatus, bool) {
	st, ok := p.Vacations[userID][d]
	return st, ok
}

// WishOn 某日的愿望
func (p *PlanState) WishOn(userID int, d roster.Date) (roster.WishRequest, bool) {
	w, ok := p.Wishes[userID][d]
	return w, ok
}

func noopProgress(int, string) {}
