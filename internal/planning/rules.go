package planning

import (
	"time"

	"dienstplan/internal/roster"
)

// ShiftGrid user → date → code
type ShiftGrid map[int]map[roster.Date]string

// Get 读取格子，缺失为空串
func (g ShiftGrid) Get(userID int, d roster.Date) string {
	return g[userID][d]
}

// Set 写入格子；空代码删除
func (g ShiftGrid) Set(userID int, d roster.Date, code string) {
	if code == "" {
		if days, ok := g[userID]; ok {
			delete(days, d)
			if len(days) == 0 {
				delete(g, userID)
			}
		}
		return
	}
	if g[userID] == nil {
		g[userID] = make(map[roster.Date]string)
	}
	g[userID][d] = code
}

// Clone 深拷贝
func (g ShiftGrid) Clone() ShiftGrid {
	out := make(ShiftGrid, len(g))
	for uid, days := range g {
		m := make(map[roster.Date]string, len(days))
		for d, code := range days {
			m[d] = code
		}
		out[uid] = m
	}
	return out
}

// maxLookback 向前回溯的最大天数（上月整月 + 本月）
const maxLookback = 62

// Rules 纯查询的规则助手，PDM 与生成器各自用自己的网格构造
type Rules struct {
	year      int
	month     time.Month
	current   ShiftGrid
	prevMonth ShiftGrid
	nextMonth ShiftGrid
	catalog   *roster.ShiftCatalog
	restDays  int
}

// NewRules 构造规则助手；current 为计划月网格
func NewRules(year int, month time.Month, current, prev, next ShiftGrid, catalog *roster.ShiftCatalog, mandatoryRestDays int) *Rules {
	return &Rules{
		year:      year,
		month:     month,
		current:   current,
		prevMonth: prev,
		nextMonth: next,
		catalog:   catalog,
		restDays:  mandatoryRestDays,
	}
}

// RawShift 任意日期的原始代码：计划月读当前网格，之前读上月，之后读下月
func (r *Rules) RawShift(userID int, d roster.Date) string {
	switch {
	case d.InMonth(r.year, r.month):
		return r.current.Get(userID, d)
	case d.Before(roster.Date{Year: r.year, Month: r.month, Day: 1}):
		return r.prevMonth.Get(userID, d)
	default:
		return r.nextMonth.Get(userID, d)
	}
}

// PreviousShift 前一天的班次，休息类代码归一为空串
func (r *Rules) PreviousShift(userID int, d roster.Date) string {
	code := r.RawShift(userID, d.AddDays(-1))
	if roster.IsFreeIndicator(code) {
		return ""
	}
	return code
}

// PreviousRawShift 前一天的原始代码
func (r *Rules) PreviousRawShift(userID int, d roster.Date) string {
	return r.RawShift(userID, d.AddDays(-1))
}

// NextRawShift 后一天的原始代码
func (r *Rules) NextRawShift(userID int, d roster.Date) string {
	return r.RawShift(userID, d.AddDays(1))
}

// ShiftAfterNextRawShift 后两天的原始代码
func (r *Rules) ShiftAfterNextRawShift(userID int, d roster.Date) string {
	return r.RawShift(userID, d.AddDays(2))
}

// CountConsecutiveShifts d 之前连续上班的天数（不含 d）
func (r *Rules) CountConsecutiveShifts(userID int, d roster.Date) int {
	n := 0
	for x := d.AddDays(-1); n < maxLookback && roster.IsHardWork(r.RawShift(userID, x)); x = x.AddDays(-1) {
		n++
	}
	return n
}

// CountConsecutiveSameShifts d 之前连续上同一班次的天数（不含 d）
func (r *Rules) CountConsecutiveSameShifts(userID int, d roster.Date, code string) int {
	if code == "" || roster.IsFreeIndicator(code) {
		return 0
	}
	n := 0
	for x := d.AddDays(-1); n < maxLookback && r.RawShift(userID, x) == code; x = x.AddDays(-1) {
		n++
	}
	return n
}

// CheckMandatoryRest 在 d 上班是否满足强制休息：
// 若当前休息段之前紧接着一段 ≥ HardMax 的连续上班，则休息段须 ≥ mandatoryRestDays
func (r *Rules) CheckMandatoryRest(userID int, d roster.Date) bool {
	if r.restDays <= 0 {
		return true
	}
	free := 0
	x := d.AddDays(-1)
	for roster.IsFreeIndicator(r.RawShift(userID, x)) {
		free++
		if free >= r.restDays {
			return true
		}
		x = x.AddDays(-1)
	}
	block := 0
	for block < maxLookback && roster.IsHardWork(r.RawShift(userID, x)) {
		block++
		x = x.AddDays(-1)
	}
	return block < roster.HardMaxConsecutiveShifts
}

// CheckTimeOverlap 两个班次时间段是否相交
func (r *Rules) CheckTimeOverlap(a, b string) bool {
	return r.catalog.Overlaps(a, b)
}

// NightToDayViolation 夜班后次日接 T./6/QA/S
func (r *Rules) NightToDayViolation(userID int, d roster.Date, code string) bool {
	return roster.IsBlockedAfterNight(code) && r.PreviousShift(userID, d) == roster.CodeNight
}

// NightFreeDayViolation N.-休-T. 模式
func (r *Rules) NightFreeDayViolation(userID int, d roster.Date, code string) bool {
	if code != roster.CodeDay {
		return false
	}
	if !roster.IsFreeIndicator(r.PreviousRawShift(userID, d)) {
		return false
	}
	return r.RawShift(userID, d.AddDays(-2)) == roster.CodeNight
}

// IsIsolated 在 d 安排 code 是否形成孤立的单个工作日
func (r *Rules) IsIsolated(userID int, d roster.Date, pattern string) bool {
	prev := r.PreviousRawShift(userID, d)
	if !roster.IsFreeIndicator(prev) {
		return false
	}
	next := r.NextRawShift(userID, d)
	if roster.IsExplicitFree(next) {
		return true
	}
	if pattern != roster.IsolationLongFree || next != "" {
		return false
	}
	prevPrev := r.RawShift(userID, d.AddDays(-2))
	return roster.IsFreeIndicator(prevPrev) && roster.IsExplicitFree(r.ShiftAfterNextRawShift(userID, d))
}

// HoursFor 某日某班次计入的时长：月末最后一天的夜班只计 6 小时
func HoursFor(catalog *roster.ShiftCatalog, code string, d roster.Date) float64 {
	if code == roster.CodeNight && d.Day == roster.DaysInMonth(d.Year, d.Month) {
		return lastNightHours
	}
	return catalog.Hours(code)
}

// lastNightHours 跨月夜班在本月计入的时长
const lastNightHours = 6.0
