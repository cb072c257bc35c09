package view

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"dienstplan/internal/planning"
	"dienstplan/internal/roster"
)

// maxNotices 保留的提示条数
const maxNotices = 50

// CellState 单元格显示状态
type CellState struct {
	Text     string `json:"text"`
	Locked   bool   `json:"locked"`
	Conflict bool   `json:"conflict"`
}

// DayState 某日统计显示
type DayState struct {
	Counts map[string]int `json:"counts"`
	// Required 最低人数，与 Counts 一起显示为 "1/2"
	Required     map[string]int `json:"required,omitempty"`
	Understaffed []string       `json:"understaffed,omitempty"`
}

// Notice 警告 / 错误提示
type Notice struct {
	Level   string `json:"level"` // warning | error
	Message string `json:"message"`
}

// GridView 排班表的内存显示层：流水线往里绘制，API 从中读取
type GridView struct {
	mu sync.RWMutex

	year    int
	month   int
	cells   map[planning.Cell]CellState
	hours   map[int]float64
	days    map[int]DayState
	notices []Notice

	// dirty 自上次 Flush 以来重绘过的格子
	dirty   map[planning.Cell]bool
	flushes int
	layouts int
}

// NewGridView 创建空视图
func NewGridView() *GridView {
	g := &GridView{}
	g.Reset(0, 0)
	return g
}

// Reset 切换月份时清空
func (g *GridView) Reset(year, month int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.year, g.month = year, month
	g.cells = make(map[planning.Cell]CellState)
	g.hours = make(map[int]float64)
	g.days = make(map[int]DayState)
	g.dirty = make(map[planning.Cell]bool)
}

// PaintCell 重绘单个格子（含锁标记），保留冲突标记
func (g *GridView) PaintCell(userID int, d roster.Date, text string, locked bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := planning.Cell{UserID: userID, Day: d.Day}
	st := g.cells[c]
	st.Text, st.Locked = text, locked
	g.store(c, st)
	g.dirty[c] = true
}

// Flush 提交本轮重绘
func (g *GridView) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dirty = make(map[planning.Cell]bool)
	g.flushes++
}

// PaintConflicts 只更新给定格子的冲突标记
func (g *GridView) PaintConflicts(marks map[planning.Cell]bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for c, conflict := range marks {
		st := g.cells[c]
		st.Conflict = conflict
		g.store(c, st)
	}
}

// store 空状态不占用条目，保证往返编辑后视图可比较
func (g *GridView) store(c planning.Cell, st CellState) {
	if st == (CellState{}) {
		delete(g.cells, c)
		return
	}
	g.cells[c] = st
}

// RefreshUserHours 刷新员工工时标签
func (g *GridView) RefreshUserHours(userID int, hours float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hours[userID] = hours
}

// RefreshDayCounts 刷新某日统计标签
func (g *GridView) RefreshDayCounts(d roster.Date, counts, required map[string]int, understaffed []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var req map[string]int
	if len(required) > 0 {
		req = copyCounts(required)
	}
	g.days[d.Day] = DayState{
		Counts:       copyCounts(counts),
		Required:     req,
		Understaffed: append([]string(nil), understaffed...),
	}
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Label 统计标签文本，如 "1/2"；无要求时只显示人数
func (s DayState) Label(code string) string {
	if req, ok := s.Required[code]; ok {
		return fmt.Sprintf("%d/%d", s.Counts[code], req)
	}
	return strconv.Itoa(s.Counts[code])
}

// RecomputeLayout 重新计算滚动区域
func (g *GridView) RecomputeLayout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.layouts++
}

// ShowWarning 警告提示
func (g *GridView) ShowWarning(msg string) { g.notice("warning", msg) }

// ShowError 错误提示
func (g *GridView) ShowError(msg string) { g.notice("error", msg) }

func (g *GridView) notice(level, msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notices = append(g.notices, Notice{Level: level, Message: msg})
	if len(g.notices) > maxNotices {
		g.notices = g.notices[len(g.notices)-maxNotices:]
	}
}

// ════════════════════════════════════════════════════════════
// 读取
// ════════════════════════════════════════════════════════════

// Cell 单元格显示状态
func (g *GridView) Cell(userID, day int) CellState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cells[planning.Cell{UserID: userID, Day: day}]
}

// Text 单元格显示文本
func (g *GridView) Text(userID, day int) string {
	return g.Cell(userID, day).Text
}

// Hours 员工工时标签
func (g *GridView) Hours(userID int) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hours[userID]
}

// Day 某日统计
func (g *GridView) Day(day int) DayState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.days[day]
}

// Flushes 提交次数
func (g *GridView) Flushes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.flushes
}

// Layouts 布局重算次数
func (g *GridView) Layouts() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.layouts
}

// Pending 尚未 Flush 的格子数
func (g *GridView) Pending() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.dirty)
}

// DrainNotices 取出并清空提示
func (g *GridView) DrainNotices() []Notice {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.notices
	g.notices = nil
	return out
}

// Row 某员工的一行
type Row struct {
	UserID int               `json:"user_id"`
	Hours  float64           `json:"hours"`
	Cells  map[int]CellState `json:"cells"`
}

// Grid 整月显示快照
type Grid struct {
	Year  int              `json:"year"`
	Month int              `json:"month"`
	Rows  []Row            `json:"rows"`
	Days  map[int]DayState `json:"days"`
}

// Snapshot 按员工顺序导出显示状态
func (g *GridView) Snapshot(userOrder []int) Grid {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := Grid{Year: g.year, Month: g.month, Days: make(map[int]DayState, len(g.days))}
	for day, st := range g.days {
		out.Days[day] = st
	}
	byUser := make(map[int]map[int]CellState)
	for c, st := range g.cells {
		if byUser[c.UserID] == nil {
			byUser[c.UserID] = make(map[int]CellState)
		}
		byUser[c.UserID][c.Day] = st
	}
	seen := make(map[int]bool, len(userOrder))
	for _, uid := range userOrder {
		seen[uid] = true
		out.Rows = append(out.Rows, Row{UserID: uid, Hours: g.hours[uid], Cells: byUser[uid]})
	}
	// 不在顺序表中的员工按 ID 追加
	var rest []int
	for uid := range byUser {
		if !seen[uid] {
			rest = append(rest, uid)
		}
	}
	sort.Ints(rest)
	for _, uid := range rest {
		out.Rows = append(out.Rows, Row{UserID: uid, Hours: g.hours[uid], Cells: byUser[uid]})
	}
	return out
}
