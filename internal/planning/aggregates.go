package planning

import (
	"time"

	"dienstplan/internal/roster"
)

// hoursForUser 按排班逐日累加时长（月末夜班按 6 小时）
func (st *monthState) hoursForUser(catalog *roster.ShiftCatalog, userID int) float64 {
	total := 0.0
	for d, code := range st.schedule[userID] {
		total += HoursFor(catalog, code, d)
	}
	return total
}

// incCount 每日统计增减，归零即删除以保持缓存可比较
func (st *monthState) incCount(d roster.Date, code string, delta int) {
	if code == "" {
		return
	}
	day := st.dailyCounts[d]
	if day == nil {
		if delta <= 0 {
			return
		}
		day = make(map[string]int)
		st.dailyCounts[d] = day
	}
	day[code] += delta
	if day[code] <= 0 {
		delete(day, code)
	}
	if len(day) == 0 {
		delete(st.dailyCounts, d)
	}
}

// CalculateTotalHoursForUser 权威工时计算；只支持已加载月与其上月
func (m *Manager) CalculateTotalHoursForUser(userID int, year int, month time.Month) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.state
	if st == nil {
		return 0
	}
	if st.year == year && st.month == month {
		return st.hoursForUser(m.catalog, userID)
	}
	py, pm := roster.PrevMonth(st.year, st.month)
	if py == year && pm == month {
		total := 0.0
		for d, code := range st.prevMonth[userID] {
			total += HoursFor(m.catalog, code, d)
		}
		return total
	}
	return 0
}

// ShiftHoursOn 某日某班次计入的时长
func (m *Manager) ShiftHoursOn(code string, d roster.Date) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return HoursFor(m.catalog, code, d)
}

// RecalculateDailyCountsForDay O(1) 更新某日统计：旧代码 -1，新代码 +1
// 调用方负责只对可见员工调用
func (m *Manager) RecalculateDailyCountsForDay(d roster.Date, oldCode, newCode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil || oldCode == newCode {
		return
	}
	m.state.incCount(d, oldCode, -1)
	m.state.incCount(d, newCode, 1)
}

// AdjustUserHours 增量更新员工工时
func (m *Manager) AdjustUserHours(userID int, delta float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return 0
	}
	m.state.userHours[userID] += delta
	return m.state.userHours[userID]
}

// UserHours 员工当前工时
func (m *Manager) UserHours(userID int) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return 0
	}
	return m.state.userHours[userID]
}

// AllUserHours 全部员工工时副本
func (m *Manager) AllUserHours() map[int]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int]float64)
	if m.state == nil {
		return out
	}
	for uid, h := range m.state.userHours {
		out[uid] = h
	}
	return out
}

// DailyCounts 某日各班次人数副本
func (m *Manager) DailyCounts(d roster.Date) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int)
	if m.state == nil {
		return out
	}
	for code, n := range m.state.dailyCounts[d] {
		out[code] = n
	}
	return out
}

// IsVisible 员工是否计入每日统计
func (m *Manager) IsVisible(userID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state != nil && m.state.employees.IsVisible(userID)
}
