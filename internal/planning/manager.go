package planning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"dienstplan/internal/roster"
	pkgerrors "dienstplan/pkg/errors"
)

// ── PDM 业务错误 ──

var (
	// ErrSnapshotLoad 月度快照加载失败，调用方可重试
	ErrSnapshotLoad     = errors.New("月度数据加载失败")
	ErrUnknownEmployee  = errors.New("员工不在当月名单中")
	ErrDateOutOfMonth   = errors.New("日期不在当前计划月内")
	ErrWishNotFound     = errors.New("愿望申请不存在")
	ErrLockMismatch     = errors.New("锁定代码与排班不一致")
	ErrMissingCatalog   = errors.New("班次目录未加载")
	ErrMissingStaffing  = errors.New("人员配置规则未加载")
	ErrSnapshotMismatch = errors.New("快照年月与请求不符")
)

// monthState 一个月的全部缓存，整体替换以保证加载原子性
type monthState struct {
	year         int
	month        time.Month
	employees    *roster.EmployeeCatalog
	schedule     ShiftGrid
	prevMonth    ShiftGrid
	nextMonth    ShiftGrid
	vacations    map[int]map[roster.Date]roster.VacationStatus
	rawVacations []roster.VacationRequest
	wishes       map[int]map[roster.Date]roster.WishRequest
	// wishCells 代码由该愿望写入的格子（按愿望 ID），撤回/拒绝时只清除这些
	wishCells    map[int]bool
	locks        *roster.LockStore
	dailyCounts  map[roster.Date]map[string]int
	userHours    map[int]float64
	violations   map[Cell]struct{}
}

// Manager 计划数据管理器（PDM）：单月计划的唯一数据源
type Manager struct {
	mu       sync.RWMutex
	source   SnapshotSource
	logger   *zap.Logger
	catalog  *roster.ShiftCatalog
	staffing *roster.StaffingRules
	cfg      roster.GeneratorConfig
	state    *monthState
}

// NewManager 创建 PDM
func NewManager(source SnapshotSource, catalog *roster.ShiftCatalog, staffing *roster.StaffingRules, cfg roster.GeneratorConfig, logger *zap.Logger) *Manager {
	return &Manager{
		source:   source,
		logger:   logger,
		catalog:  catalog,
		staffing: staffing,
		cfg:      cfg.Normalize(),
	}
}

// SetCatalog 管理员修改班次后替换目录；已加载月份的工时按新时长重算
func (m *Manager) SetCatalog(c *roster.ShiftCatalog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog = c
	if m.state == nil {
		return
	}
	for _, e := range m.state.employees.All() {
		m.state.userHours[e.ID] = m.state.hoursForUser(c, e.ID)
	}
}

// SetStaffingRules 替换人员配置规则
func (m *Manager) SetStaffingRules(s *roster.StaffingRules) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staffing = s
}

// SetGeneratorConfig 替换生成器配置（违规判定使用其中的休息天数、同班上限与回避搭档）
func (m *Manager) SetGeneratorConfig(cfg roster.GeneratorConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg.Normalize()
}

// Catalog 当前班次目录
func (m *Manager) Catalog() *roster.ShiftCatalog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalog
}

// StaffingRules 当前人员配置规则
func (m *Manager) StaffingRules() *roster.StaffingRules {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.staffing
}

// GeneratorConfig 当前生成器配置
func (m *Manager) GeneratorConfig() roster.GeneratorConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// ════════════════════════════════════════════════════════════
// Load 加载月度快照
// ════════════════════════════════════════════════════════════

// Load 读取合并快照并重建全部缓存；ctx 取消时不提交任何状态
func (m *Manager) Load(ctx context.Context, year int, month time.Month, progress ProgressFunc) error {
	if progress == nil {
		progress = noopProgress
	}
	m.mu.RLock()
	catalog := m.catalog
	m.mu.RUnlock()
	if catalog == nil {
		return ErrMissingCatalog
	}

	progress(0, "开始加载月度数据")
	snap, err := m.source.LoadMonthSnapshot(ctx, year, month, progress)
	if err != nil {
		if ctx.Err() != nil {
			return pkgerrors.ErrLoadCancelled
		}
		m.logger.Error("加载月度快照失败", zap.Int("year", year), zap.Int("month", int(month)), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrSnapshotLoad, err)
	}
	if snap.Year != year || snap.Month != month {
		return ErrSnapshotMismatch
	}

	progress(80, "构建缓存")
	st := buildMonthState(snap, catalog, m.logger)

	if ctx.Err() != nil {
		m.logger.Info("月度加载已取消，不提交缓存", zap.Int("year", year), zap.Int("month", int(month)))
		return pkgerrors.ErrLoadCancelled
	}

	m.mu.Lock()
	m.state = st
	m.mu.Unlock()

	progress(100, "加载完成")
	m.logger.Info("月度数据加载完成",
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("employees", st.employees.Len()),
		zap.Int("locks", st.locks.Len()),
	)
	return nil
}

// buildMonthState 由快照构建缓存
func buildMonthState(snap *MonthSnapshot, catalog *roster.ShiftCatalog, logger *zap.Logger) *monthState {
	year, month := snap.Year, snap.Month
	prevY, prevM := roster.PrevMonth(year, month)

	var active []roster.Employee
	for _, e := range snap.Employees {
		if e.ActiveIn(year, month) {
			active = append(active, e)
		}
	}
	st := &monthState{
		year:        year,
		month:       month,
		employees:   roster.NewEmployeeCatalog(active),
		schedule:    make(ShiftGrid),
		prevMonth:   make(ShiftGrid),
		nextMonth:   make(ShiftGrid),
		vacations:   make(map[int]map[roster.Date]roster.VacationStatus),
		wishes:      make(map[int]map[roster.Date]roster.WishRequest),
		wishCells:   make(map[int]bool),
		locks:       roster.NewLockStore(nil),
		dailyCounts: make(map[roster.Date]map[string]int),
		userHours:   make(map[int]float64),
		violations:  make(map[Cell]struct{}),
	}

	// 排班：按月份分流
	for _, row := range snap.Shifts {
		if _, ok := st.employees.Get(row.UserID); !ok || row.Code == "" {
			continue
		}
		switch {
		case row.Date.InMonth(year, month):
			st.schedule.Set(row.UserID, row.Date, row.Code)
		case row.Date.InMonth(prevY, prevM):
			st.prevMonth.Set(row.UserID, row.Date, row.Code)
		case row.Date.After(roster.Date{Year: year, Month: month, Day: roster.DaysInMonth(year, month)}):
			st.nextMonth.Set(row.UserID, row.Date, row.Code)
		}
	}

	// 锁定：以锁为准写回排班
	for _, l := range snap.Locks {
		if !l.Date.InMonth(year, month) {
			continue
		}
		st.locks.Set(l.UserID, l.Date, l.Code)
		if cur := st.schedule.Get(l.UserID, l.Date); cur != l.Code {
			if cur != "" {
				logger.Debug("锁定与排班不一致，以锁为准",
					zap.Int("user_id", l.UserID), zap.String("date", l.Date.String()),
					zap.String("schedule", cur), zap.String("lock", l.Code))
			}
			st.schedule.Set(l.UserID, l.Date, l.Code)
		}
	}

	// 休假：按天展开，仅保留已批准与待审批
	for _, v := range snap.Vacations {
		if v.Archived {
			continue
		}
		if v.Status != roster.VacationApproved && v.Status != roster.VacationPending {
			continue
		}
		st.rawVacations = append(st.rawVacations, v)
		for _, d := range v.Days() {
			if !d.InMonth(year, month) && !d.InMonth(prevY, prevM) {
				continue
			}
			if st.vacations[v.UserID] == nil {
				st.vacations[v.UserID] = make(map[roster.Date]roster.VacationStatus)
			}
			st.vacations[v.UserID][d] = v.Status
			if v.Status != roster.VacationApproved {
				continue
			}
			if d.InMonth(year, month) {
				if !st.locks.IsLocked(v.UserID, d) {
					st.schedule.Set(v.UserID, d, roster.CodeVacation)
				}
			} else if st.prevMonth.Get(v.UserID, d) == "" {
				st.prevMonth.Set(v.UserID, d, roster.CodeVacation)
			}
		}
	}

	// 愿望：WF 仅在空格子体现为 X，其余已接受愿望体现为所申请代码
	for _, w := range snap.Wishes {
		if !w.Date.InMonth(year, month) && !w.Date.InMonth(prevY, prevM) {
			continue
		}
		if st.wishes[w.UserID] == nil {
			st.wishes[w.UserID] = make(map[roster.Date]roster.WishRequest)
		}
		st.wishes[w.UserID][w.Date] = w
		if !w.Date.InMonth(year, month) || !st.wishCanManifest(w) {
			continue
		}
		existing := st.schedule.Get(w.UserID, w.Date)
		if code, ok := w.ManifestCode(existing); ok {
			// 库中已是该代码时视为此前接受时写入
			st.schedule.Set(w.UserID, w.Date, code)
			st.wishCells[w.ID] = true
		}
	}

	// 派生聚合
	for _, e := range st.employees.All() {
		st.userHours[e.ID] = st.hoursForUser(catalog, e.ID)
		if !e.Visible {
			continue
		}
		for d, code := range st.schedule[e.ID] {
			st.incCount(d, code, 1)
		}
	}
	return st
}

// InvalidateMonthCache 丢弃该月缓存，下次读取需重新 Load
func (m *Manager) InvalidateMonthCache(year int, month time.Month) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != nil && m.state.year == year && m.state.month == month {
		m.state = nil
		m.logger.Info("月度缓存已失效", zap.Int("year", year), zap.Int("month", int(month)))
	}
}

// Loaded 当前是否有有效快照
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state != nil
}

// PlanMonth 当前计划月
func (m *Manager) PlanMonth() (int, time.Month, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return 0, 0, false
	}
	return m.state.year, m.state.month, true
}

// mustState 调用方须持锁
func (m *Manager) mustState() (*monthState, error) {
	if m.state == nil {
		return nil, pkgerrors.ErrMonthNotLoaded
	}
	return m.state, nil
}

// rulesLocked 基于当前缓存的规则助手，调用方须持锁
func (m *Manager) rulesLocked(st *monthState) *Rules {
	return NewRules(st.year, st.month, st.schedule, st.prevMonth, st.nextMonth, m.catalog, m.cfg.MandatoryRestDays)
}

// ════════════════════════════════════════════════════════════
// 只读查询
// ════════════════════════════════════════════════════════════

// Employees 当月员工（显示顺序）
func (m *Manager) Employees() []roster.Employee {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil
	}
	return m.state.employees.All()
}

// Employee 按 ID 查询当月员工
func (m *Manager) Employee(userID int) (roster.Employee, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return roster.Employee{}, false
	}
	return m.state.employees.Get(userID)
}

// ShiftAt 格子的排班代码
func (m *Manager) ShiftAt(userID int, d roster.Date) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return ""
	}
	return m.rulesLocked(m.state).RawShift(userID, d)
}

// DisplayCode 格子显示文本：待审批休假覆盖显示为 U?
func (m *Manager) DisplayCode(userID int, d roster.Date) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return ""
	}
	return m.state.displayCode(userID, d)
}

func (st *monthState) displayCode(userID int, d roster.Date) string {
	if st.vacations[userID][d] == roster.VacationPending {
		return roster.CodeVacationPending
	}
	return st.schedule.Get(userID, d)
}

// LockCode 锁定代码
func (m *Manager) LockCode(userID int, d roster.Date) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return "", false
	}
	return m.state.locks.Get(userID, d)
}

// VacationOn 某日的休假状态（仅已批准 / 待审批）
func (m *Manager) VacationOn(userID int, d roster.Date) (roster.VacationStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return "", false
	}
	st, ok := m.state.vacations[userID][d]
	return st, ok
}

// WishOn 某日的愿望
func (m *Manager) WishOn(userID int, d roster.Date) (roster.WishRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return roster.WishRequest{}, false
	}
	w, ok := m.state.wishes[userID][d]
	return w, ok
}

// Wish 按 ID 查找愿望
func (m *Manager) Wish(id int) (roster.WishRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return roster.WishRequest{}, false
	}
	return m.state.findWish(id)
}

// wishCanManifest 锁定格子与已批准休假日不受愿望影响
func (st *monthState) wishCanManifest(w roster.WishRequest) bool {
	if st.locks.IsLocked(w.UserID, w.Date) {
		return false
	}
	return st.vacations[w.UserID][w.Date] != roster.VacationApproved
}

func (st *monthState) findWish(id int) (roster.WishRequest, bool) {
	for _, days := range st.wishes {
		for _, w := range days {
			if w.ID == id {
				return w, true
			}
		}
	}
	return roster.WishRequest{}, false
}

// GetMinStaffingForDate 某日最低人数要求
func (m *Manager) GetMinStaffingForDate(d roster.Date) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.staffing == nil {
		return map[string]int{}
	}
	return m.staffing.Resolve(d)
}

// FridayShiftAllowed 该日是否可排 "6"；无规则时只看星期
func (m *Manager) FridayShiftAllowed(d roster.Date) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.staffing == nil {
		return d.Weekday() == time.Friday
	}
	return m.staffing.FridayShiftAllowed(d)
}

// DisplayCounts 统计行显示的人数；不可排 "6" 的日子不显示 "6" 的人数
func (m *Manager) DisplayCounts(d roster.Date) map[string]int {
	counts := m.DailyCounts(d)
	if !m.FridayShiftAllowed(d) {
		delete(counts, roster.CodeFriday)
	}
	return counts
}

// Understaffing 某日缺员的班次
func (m *Manager) Understaffing(d roster.Date) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil || m.staffing == nil {
		return nil
	}
	return m.staffing.Understaffed(d, m.state.dailyCounts[d], m.catalog)
}

// Snapshot 深拷贝当前状态供生成器使用
func (m *Manager) Snapshot() (*PlanState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, err := m.mustState()
	if err != nil {
		return nil, err
	}
	ps := &PlanState{
		Year:      st.year,
		Month:     st.month,
		Employees: st.employees.All(),
		Schedule:  st.schedule.Clone(),
		PrevMonth: st.prevMonth.Clone(),
		NextMonth: st.nextMonth.Clone(),
		Vacations: make(map[int]map[roster.Date]roster.VacationStatus, len(st.vacations)),
		Wishes:    make(map[int]map[roster.Date]roster.WishRequest, len(st.wishes)),
		Locks:     st.locks.Clone(),
	}
	for uid, days := range st.vacations {
		cp := make(map[roster.Date]roster.VacationStatus, len(days))
		for d, s := range days {
			cp[d] = s
		}
		ps.Vacations[uid] = cp
	}
	for uid, days := range st.wishes {
		cp := make(map[roster.Date]roster.WishRequest, len(days))
		for d, w := range days {
			cp[d] = w
		}
		ps.Wishes[uid] = cp
	}
	return ps, nil
}

// ScheduleCopy 当前计划月排班的深拷贝
func (m *Manager) ScheduleCopy() ShiftGrid {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return ShiftGrid{}
	}
	return m.state.schedule.Clone()
}

func sortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].UserID != cells[j].UserID {
			return cells[i].UserID < cells[j].UserID
		}
		return cells[i].Day < cells[j].Day
	})
}
