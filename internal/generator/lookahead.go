package generator

import (
	"dienstplan/internal/roster"
)

// futureConflictWeight 每个新增违规的分值
const futureConflictWeight = 10

// futureConflictScore 模拟在 d 排 code，统计之后若干天因此新增的硬规则违规数 × 10
// 模拟结束后恢复原格子
func (e *engine) futureConflictScore(userID int, d roster.Date, code string) float64 {
	days := e.cfg.ConflictLookaheadDays
	if days <= 0 {
		return 0
	}
	original := e.live.Get(userID, d)

	type trial struct {
		date roster.Date
		code string
	}
	var trials []trial
	for i := 1; i <= days; i++ {
		x := d.AddDays(i)
		existing := e.rules.RawShift(userID, x)
		switch {
		case roster.IsHardWork(existing):
			trials = append(trials, trial{x, existing})
		case existing == "" && x.InMonth(e.year, e.month):
			for _, k := range roster.PlannableCodes {
				if k == roster.CodeFriday && !e.staffing.FridayShiftAllowed(x) {
					continue
				}
				trials = append(trials, trial{x, k})
			}
		}
	}
	if len(trials) == 0 {
		return 0
	}

	without := make([]int, len(trials))
	for i, p := range trials {
		without[i] = e.hardViolations(userID, p.date, p.code)
	}

	e.live.Set(userID, d, code)
	added := 0
	for i, p := range trials {
		if n := e.hardViolations(userID, p.date, p.code) - without[i]; n > 0 {
			added += n
		}
	}
	e.live.Set(userID, d, original)

	return float64(added * futureConflictWeight)
}

// hardViolations x 日排 code 时触发的硬规则数
func (e *engine) hardViolations(userID int, x roster.Date, code string) int {
	n := 0
	if e.rules.NightToDayViolation(userID, x, code) {
		n++
	}
	if e.rules.NightFreeDayViolation(userID, x, code) {
		n++
	}
	if e.rules.CountConsecutiveShifts(userID, x) >= roster.HardMaxConsecutiveShifts {
		n++
	}
	if !e.rules.CheckMandatoryRest(userID, x) {
		n++
	}
	return n
}
