package generator

import (
	"math"

	"dienstplan/internal/planning"
	"dienstplan/internal/roster"
)

// noPartnerBond 没有搭档关系时的默认分
const noPartnerBond = 1000

// scored 候选人的得分向量
type scored struct {
	emp      roster.Employee
	index    int // 候选顺序，最终稳定排序键
	isolated bool

	avoid     float64
	partner   float64
	future    float64
	minHours  float64
	fairness  float64
	ratio     float64
	isolation float64
	prevSame  int // 0 = 前一天同班次（延续块）
	hours     float64
}

// less 字典序：avoid↑ partner↑ future↑ minHours↓ fairness↓ ratio↑ isolation↑ prevSame↑ hours↓
func (a scored) less(b scored) bool {
	if a.avoid != b.avoid {
		return a.avoid < b.avoid
	}
	if a.partner != b.partner {
		return a.partner < b.partner
	}
	if a.future != b.future {
		return a.future < b.future
	}
	if a.minHours != b.minHours {
		return a.minHours > b.minHours
	}
	if a.fairness != b.fairness {
		return a.fairness > b.fairness
	}
	if a.ratio != b.ratio {
		return a.ratio < b.ratio
	}
	if a.isolation != b.isolation {
		return a.isolation < b.isolation
	}
	if a.prevSame != b.prevSame {
		return a.prevSame < b.prevSame
	}
	if a.hours != b.hours {
		return a.hours > b.hours
	}
	return a.index < b.index
}

// dayFactor 月末软分权重更大
func dayFactor(d roster.Date) float64 {
	return math.Max(0.01, float64(d.Day)/float64(roster.DaysInMonth(d.Year, d.Month)))
}

func (e *engine) shiftHours(code string, d roster.Date) float64 {
	return planning.HoursFor(e.catalog, code, d)
}

// score 计算候选人在 (date, code) 上的得分向量
func (e *engine) score(ds *dayState, emp roster.Employee, code string, avg float64, available map[int]bool, index int) scored {
	d := ds.date
	df := dayFactor(d)
	s := scored{
		emp:     emp,
		index:   index,
		partner: noPartnerBond,
		hours:   e.hours[emp.ID],
	}

	// 回避搭档：首个命中的关系生效
	for _, p := range roster.PartnersOf(e.cfg.AvoidPartners, emp.ID) {
		other, _ := p.Other(emp.ID)
		if ds.assignedTo(code, other) {
			s.avoid = e.cfg.AvoidPartnerPenalty / float64(max(1, p.Priority))
			break
		}
	}

	// 偏好搭档：取最小值
	for _, p := range roster.PartnersOf(e.cfg.PreferredPartners, emp.ID) {
		other, _ := p.Other(emp.ID)
		var v float64
		switch {
		case ds.assignedTo(code, other):
			v = float64(100 + p.Priority)
		case available[other]:
			v = float64(p.Priority)
		default:
			continue
		}
		if v < s.partner {
			s.partner = v
		}
	}

	s.future = e.futureConflictScore(emp.ID, d, code)

	if minH := emp.Prefs.MinMonthlyHours; minH != nil {
		switch {
		case s.hours < *minH-e.cfg.MinHoursThreshold:
			s.minHours = e.cfg.MinHoursMultiplier * df
		case s.hours < *minH:
			s.minHours = df
		}
	}

	// 恰好低于平均值一个阈值也计分：两人 120h/140h、阈值 10 时 120h 者得分
	if avg-s.hours >= e.cfg.FairnessThreshold {
		s.fairness = e.cfg.FairnessMultiplier * df
	}

	s.ratio = e.ratioScore(emp, code, df)

	s.isolated = e.rules.IsIsolated(emp.ID, d, e.cfg.IsolationPattern)
	if s.isolated {
		s.isolation = e.cfg.IsolationMultiplier
	}

	if e.rules.PreviousShift(emp.ID, d) != code {
		s.prevSame = 1
	}
	return s
}

// ratioScore 日/夜比例偏好：分配后偏离目标更远则罚分，更近则奖励（负分）
func (e *engine) ratioScore(emp roster.Employee, code string, df float64) float64 {
	bias := emp.Prefs.RatioBias
	if bias == roster.DefaultRatioBias || !roster.IsPlannable(code) {
		return 0
	}
	target := float64(bias) / 100
	day, night := float64(e.dayCount[emp.ID]), float64(e.nightCount[emp.ID])

	dev := 0.0
	if total := day + night; total > 0 {
		dev = math.Abs(day/total - target)
	}
	if code == roster.CodeNight {
		night++
	} else {
		day++
	}
	devAfter := math.Abs(day/(day+night) - target)

	switch {
	case devAfter > dev:
		return devAfter * 2 * df
	case devAfter < dev:
		return -dev * 2 * df
	}
	return 0
}
