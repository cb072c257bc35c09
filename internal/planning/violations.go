package planning

import (
	"dienstplan/internal/roster"
)

// violationScopeDays 增量重算时向前/向后覆盖的天数
const violationScopeDays = 2

// cellViolates 判断单元格是否违反任一规则，调用方须持锁
func (m *Manager) cellViolates(st *monthState, rules *Rules, userID int, d roster.Date) bool {
	code := st.schedule.Get(userID, d)
	if !roster.IsHardWork(code) {
		return false
	}
	emp, ok := st.employees.Get(userID)
	if !ok {
		return false
	}

	// ── 单人规则 ──
	if rules.NightToDayViolation(userID, d, code) || rules.NightFreeDayViolation(userID, d, code) {
		return true
	}
	if rules.CountConsecutiveShifts(userID, d) >= roster.HardMaxConsecutiveShifts {
		return true
	}
	if !rules.CheckMandatoryRest(userID, d) {
		return true
	}
	if roster.IsPlannable(code) && rules.CountConsecutiveSameShifts(userID, d, code) >= sameShiftCap(emp, m.cfg) {
		return true
	}
	if emp.Prefs.Excludes(code) {
		return true
	}
	if st.vacations[userID][d] == roster.VacationApproved {
		return true
	}
	if w, ok := st.wishes[userID][d]; ok && w.RequestedCode == roster.CodeWishFree && w.Status.Accepted() {
		return true
	}

	// ── 跨员工规则 ──
	for _, other := range st.employees.SharingDog(userID) {
		oc := st.schedule.Get(other, d)
		if oc == "" || !roster.IsHardWork(oc) {
			continue
		}
		if oc == code || rules.CheckTimeOverlap(oc, code) {
			return true
		}
	}
	for _, p := range roster.PartnersOf(m.cfg.AvoidPartners, userID) {
		other, _ := p.Other(userID)
		if st.schedule.Get(other, d) == code {
			return true
		}
	}
	return false
}

// sameShiftCap 同班次连续上限：个人覆盖与全局配置取较大者
func sameShiftCap(emp roster.Employee, cfg roster.GeneratorConfig) int {
	limit := cfg.MaxConsecutiveSameShift
	if o := emp.Prefs.MaxSameShiftOverride; o != nil && *o > limit {
		limit = *o
	}
	return limit
}

// crossRuleNeighbors 与该员工存在跨员工规则的其他员工
func (m *Manager) crossRuleNeighbors(st *monthState, userID int) []int {
	seen := map[int]bool{userID: true}
	var out []int
	for _, other := range st.employees.SharingDog(userID) {
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	for _, p := range roster.PartnersOf(m.cfg.AvoidPartners, userID) {
		other, _ := p.Other(userID)
		if _, ok := st.employees.Get(other); ok && !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out
}

// UpdateViolationsIncrementally 重算受本次修改影响的最小单元格集合并返回该集合：
// 被改格子前后各两天；存在跨员工规则时，相关员工的同一批日期
func (m *Manager) UpdateViolationsIncrementally(userID int, d roster.Date, oldCode, newCode string) []Cell {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	if st == nil || !d.InMonth(st.year, st.month) {
		return nil
	}
	rules := m.rulesLocked(st)

	users := []int{userID}
	if oldCode != newCode || roster.IsHardWork(newCode) {
		users = append(users, m.crossRuleNeighbors(st, userID)...)
	}

	var affected []Cell
	for _, uid := range users {
		for off := -violationScopeDays; off <= violationScopeDays; off++ {
			x := d.AddDays(off)
			if !x.InMonth(st.year, st.month) {
				continue
			}
			cell := Cell{UserID: uid, Day: x.Day}
			if m.cellViolates(st, rules, uid, x) {
				st.violations[cell] = struct{}{}
			} else {
				delete(st.violations, cell)
			}
			affected = append(affected, cell)
		}
	}
	sortCells(affected)
	return affected
}

// RecomputeAllViolations 全量重算违规集合，返回违规单元格
func (m *Manager) RecomputeAllViolations() []Cell {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	if st == nil {
		return nil
	}
	rules := m.rulesLocked(st)
	st.violations = make(map[Cell]struct{})
	for _, e := range st.employees.All() {
		for _, d := range roster.MonthDates(st.year, st.month) {
			if m.cellViolates(st, rules, e.ID, d) {
				st.violations[Cell{UserID: e.ID, Day: d.Day}] = struct{}{}
			}
		}
	}
	out := make([]Cell, 0, len(st.violations))
	for c := range st.violations {
		out = append(out, c)
	}
	sortCells(out)
	return out
}

// Violations 当前违规单元格（排序后）
func (m *Manager) Violations() []Cell {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil
	}
	out := make([]Cell, 0, len(m.state.violations))
	for c := range m.state.violations {
		out = append(out, c)
	}
	sortCells(out)
	return out
}

// IsViolation 单元格是否标记为违规
func (m *Manager) IsViolation(c Cell) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return false
	}
	_, ok := m.state.violations[c]
	return ok
}
