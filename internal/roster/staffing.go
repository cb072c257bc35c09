package roster

import "time"

// 特殊活动类型
const (
	EventQuarterlyTraining = "Quartals Ausbildung"
	EventShooting          = "Schießen"
)

// eventCodes 活动类型 → 该日额外要求的班次
var eventCodes = map[string]string{
	EventQuarterlyTraining: CodeQA,
	EventShooting:          CodeShooting,
}

// StaffingRuleSet 最低在岗人数规则，每个 map 为 code → 最少人数
type StaffingRuleSet struct {
	Daily          map[string]int            `json:"daily"`
	MonThu         map[string]int            `json:"mon_thu"`
	Friday         map[string]int            `json:"fri"`
	Weekend        map[string]int            `json:"sat_sun"`
	Holiday        map[string]int            `json:"holiday"`
	EventOverrides map[string]map[string]int `json:"event_overrides,omitempty"`
}

// StaffingRules 规则 + 节假日/活动日历
type StaffingRules struct {
	Rules    StaffingRuleSet
	Holidays map[Date]string // 日期 → 节日名
	Events   map[Date]string // 日期 → 活动类型
}

// NewStaffingRules 创建规则，nil map 一律替换为空 map
func NewStaffingRules(rules StaffingRuleSet, holidays, events map[Date]string) *StaffingRules {
	if holidays == nil {
		holidays = map[Date]string{}
	}
	if events == nil {
		events = map[Date]string{}
	}
	return &StaffingRules{Rules: rules, Holidays: holidays, Events: events}
}

// IsHoliday 是否节假日
func (s *StaffingRules) IsHoliday(d Date) bool {
	_, ok := s.Holidays[d]
	return ok
}

// FridayShiftAllowed "6" 仅在非节假日的周五有效
func (s *StaffingRules) FridayShiftAllowed(d Date) bool {
	return d.Weekday() == time.Friday && !s.IsHoliday(d)
}

// Resolve 计算某日各班次最少人数
// 优先级：节假日 > 周末 > 周五 > 周一至周四，叠加在每日默认值之上；活动日再追加 QA / S
func (s *StaffingRules) Resolve(d Date) map[string]int {
	out := make(map[string]int)
	for code, n := range s.Rules.Daily {
		out[code] = n
	}

	var bucket map[string]int
	switch wd := d.Weekday(); {
	case s.IsHoliday(d):
		bucket = s.Rules.Holiday
	case wd == time.Saturday || wd == time.Sunday:
		bucket = s.Rules.Weekend
	case wd == time.Friday:
		bucket = s.Rules.Friday
	default:
		bucket = s.Rules.MonThu
	}
	for code, n := range bucket {
		out[code] = n
	}

	if !s.FridayShiftAllowed(d) {
		delete(out, CodeFriday)
	}

	if ev, ok := s.Events[d]; ok {
		// 只追加活动对应的班次，其余班次的基础要求不受影响
		if code, known := eventCodes[ev]; known {
			n := 1
			if v, has := s.Rules.EventOverrides[ev][code]; has {
				n = v
			}
			out[code] = n
		}
	}

	for code, n := range out {
		if n <= 0 {
			delete(out, code)
		}
	}
	return out
}

// Understaffed 返回低于最低人数且开启缺员检查的班次
func (s *StaffingRules) Understaffed(d Date, counts map[string]int, catalog *ShiftCatalog) []string {
	required := s.Resolve(d)
	var out []string
	for _, code := range catalog.Codes() {
		min, ok := required[code]
		if !ok || !catalog.ChecksUnderstaffing(code) {
			continue
		}
		if counts[code] < min {
			out = append(out, code)
		}
	}
	return out
}
