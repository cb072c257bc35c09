package generator

import (
	"sort"

	"dienstplan/internal/roster"
)

// ruleSet 某一轮启用的硬规则
type ruleSet struct {
	sameShiftCap   bool
	nightFreeDay   bool
	mandatoryRest  bool
	consecutiveMax int
}

// rulesForRound 第 1 轮最严格；第 2 轮起依次放宽
func (e *engine) rulesForRound(round int) ruleSet {
	if round <= 1 {
		return ruleSet{
			sameShiftCap:   true,
			nightFreeDay:   true,
			mandatoryRest:  true,
			consecutiveMax: roster.SoftMaxConsecutiveShifts,
		}
	}
	limit := roster.SoftMaxConsecutiveShifts
	if e.cfg.AvoidUnderstaffingHard {
		limit = roster.HardMaxConsecutiveShifts
	}
	return ruleSet{
		nightFreeDay:   round <= 2,
		mandatoryRest:  round <= 3,
		consecutiveMax: limit,
	}
}

// eligible 按固定优先顺序逐条检查硬规则
func (e *engine) eligible(ds *dayState, emp roster.Employee, code string, rs ruleSet) bool {
	d := ds.date
	if ds.unavailable[emp.ID] {
		return false
	}
	if e.dogConflict(ds, emp, code) {
		return false
	}
	if e.rules.NightToDayViolation(emp.ID, d, code) || e.nightBeforeBlocked(emp.ID, d, code) {
		return false
	}
	if rs.nightFreeDay && (e.rules.NightFreeDayViolation(emp.ID, d, code) || e.nightFreeDayAhead(emp.ID, d, code)) {
		return false
	}
	if emp.Prefs.Excludes(code) {
		return false
	}
	if e.rules.CountConsecutiveShifts(emp.ID, d) >= rs.consecutiveMax {
		return false
	}
	if rs.mandatoryRest && !e.rules.CheckMandatoryRest(emp.ID, d) {
		return false
	}
	if w, ok := e.state.WishOn(emp.ID, d); ok && w.BlocksDay(e.cfg.WunschfreiRespectLevel) {
		return false
	}
	if rs.sameShiftCap && e.rules.CountConsecutiveSameShifts(emp.ID, d, code) >= e.sameShiftCap(emp) {
		return false
	}
	if limit := emp.Prefs.MaxMonthlyHours; limit != nil {
		if e.hours[emp.ID]+e.shiftHours(code, d) > *limit {
			return false
		}
	}
	return true
}

// nightBeforeBlocked 今天排 N.，次日已有 T./6/QA/S
func (e *engine) nightBeforeBlocked(userID int, d roster.Date, code string) bool {
	return code == roster.CodeNight && roster.IsBlockedAfterNight(e.rules.NextRawShift(userID, d))
}

// nightFreeDayAhead 今天排 N.，明天休息且后天已有 T.
func (e *engine) nightFreeDayAhead(userID int, d roster.Date, code string) bool {
	if code != roster.CodeNight || !roster.IsFreeIndicator(e.rules.NextRawShift(userID, d)) {
		return false
	}
	return e.rules.ShiftAfterNextRawShift(userID, d) == roster.CodeDay
}

func (e *engine) sameShiftCap(emp roster.Employee) int {
	limit := e.cfg.MaxConsecutiveSameShift
	if o := emp.Prefs.MaxSameShiftOverride; o != nil && *o > limit {
		limit = *o
	}
	return limit
}

// ════════════════════════════════════════════════════════════
// 公平轮（第 1 轮）
// ════════════════════════════════════════════════════════════

// fairRound 逐个挑选得分最优的候选人直到满员或无人可选，返回分配人数
func (e *engine) fairRound(ds *dayState, code string, needed int) int {
	rs := e.rulesForRound(1)
	assigned := 0
	for assigned < needed {
		var pool []roster.Employee
		for _, emp := range e.employees {
			if e.eligible(ds, emp, code, rs) {
				pool = append(pool, emp)
			}
		}
		if len(pool) == 0 {
			break
		}
		ranked := e.rankFair(ds, code, pool)
		e.assign(ds, ranked[0].emp.ID, code)
		assigned++
	}
	return assigned
}

// rankFair 计算得分并按字典序排序
func (e *engine) rankFair(ds *dayState, code string, pool []roster.Employee) []scored {
	avg := e.avgHoursAmongAvailable(ds)
	available := make(map[int]bool, len(pool))
	for _, emp := range pool {
		available[emp.ID] = true
	}
	out := make([]scored, 0, len(pool))
	for i, emp := range pool {
		out = append(out, e.score(ds, emp, code, avg, available, i))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// avgHoursAmongAvailable 当日未被占用员工的平均工时
func (e *engine) avgHoursAmongAvailable(ds *dayState) float64 {
	total, n := 0.0, 0
	for _, emp := range e.employees {
		if ds.unavailable[emp.ID] {
			continue
		}
		total += e.hours[emp.ID]
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// ════════════════════════════════════════════════════════════
// 填补轮（第 2-4 轮）
// ════════════════════════════════════════════════════════════

// fillRound 放宽部分规则后，按工时升序把班次交给最空闲的人
func (e *engine) fillRound(ds *dayState, code string, needed, round int) int {
	rs := e.rulesForRound(round)
	assigned := 0
	for assigned < needed {
		var best *roster.Employee
		for i := range e.employees {
			emp := e.employees[i]
			if !e.eligible(ds, emp, code, rs) {
				continue
			}
			if best == nil || e.hours[emp.ID] < e.hours[best.ID] {
				best = &e.employees[i]
			}
		}
		if best == nil {
			break
		}
		e.assign(ds, best.ID, code)
		assigned++
	}
	return assigned
}
