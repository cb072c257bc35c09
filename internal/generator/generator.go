package generator

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"dienstplan/internal/planning"
	"dienstplan/internal/roster"
)

// ── 生成器业务错误 ──

var (
	ErrNilState       = errors.New("缺少计划快照")
	ErrNilCatalog     = errors.New("缺少班次目录")
	ErrNilStaffing    = errors.New("缺少人员配置规则")
	ErrPersistFailed  = errors.New("排班批量写入失败")
	ErrAlreadyRunning = errors.New("该月排班生成正在进行")
)

// Input 一次生成所需的全部输入；State 为深拷贝，生成器可随意修改
type Input struct {
	State    *planning.PlanState
	Catalog  *roster.ShiftCatalog
	Staffing *roster.StaffingRules
	Config   roster.GeneratorConfig
	Progress planning.ProgressFunc
}

// Shortfall 某日某班次未能排满
type Shortfall struct {
	Date     roster.Date `json:"date"`
	Code     string      `json:"code"`
	Required int         `json:"required"`
	Assigned int         `json:"assigned"`
}

// Result 生成结果
type Result struct {
	Year       int
	Month      time.Month
	Shifts     planning.ShiftGrid // 计划月全部排班（含锁定与原有代码）
	Assigned   int
	ByRound    [5]int // 下标 1-4 为各轮分配人次
	Shortfalls []Shortfall
}

// Rows 计划月全部非空格子，按员工、日期排序
func (r *Result) Rows() []planning.ShiftRow {
	var rows []planning.ShiftRow
	for _, d := range roster.MonthDates(r.Year, r.Month) {
		for uid, days := range r.Shifts {
			if code := days[d]; code != "" {
				rows = append(rows, planning.ShiftRow{UserID: uid, Date: d, Code: code})
			}
		}
	}
	sortRows(rows)
	return rows
}

// engine 单次生成的工作状态
type engine struct {
	year     int
	month    time.Month
	catalog  *roster.ShiftCatalog
	staffing *roster.StaffingRules
	cfg      roster.GeneratorConfig
	state    *planning.PlanState

	live  planning.ShiftGrid
	rules *planning.Rules

	employees []roster.Employee
	byID      map[int]roster.Employee

	hours      map[int]float64
	dayCount   map[int]int // T. 与 6
	nightCount map[int]int // N.

	result *Result
}

// Generate 贪心分轮排班：逐日、逐班次先跑公平轮，无人可排时依次放宽规则
func Generate(in Input) (*Result, error) {
	if in.State == nil {
		return nil, ErrNilState
	}
	if in.Catalog == nil {
		return nil, ErrNilCatalog
	}
	if in.Staffing == nil {
		return nil, ErrNilStaffing
	}
	progress := in.Progress
	if progress == nil {
		progress = func(int, string) {}
	}

	e := newEngine(in)
	dates := roster.MonthDates(e.year, e.month)
	for i, d := range dates {
		required := e.staffing.Resolve(d)
		for _, code := range roster.PlannableCodes {
			if code == roster.CodeFriday && !e.staffing.FridayShiftAllowed(d) {
				continue
			}
			e.fillSlot(d, code, required[code])
		}
		progress((i+1)*100/len(dates), fmt.Sprintf("已处理 %s", d))
	}
	e.result.Shifts = e.live
	return e.result, nil
}

func newEngine(in Input) *engine {
	st := in.State
	e := &engine{
		year:       st.Year,
		month:      st.Month,
		catalog:    in.Catalog,
		staffing:   in.Staffing,
		cfg:        in.Config.Normalize(),
		state:      st,
		live:       st.Schedule.Clone(),
		byID:       make(map[int]roster.Employee, len(st.Employees)),
		hours:      make(map[int]float64),
		dayCount:   make(map[int]int),
		nightCount: make(map[int]int),
		result:     &Result{Year: st.Year, Month: st.Month},
	}

	// 锁定覆盖在排班之上
	if st.Locks != nil {
		for _, l := range st.Locks.InMonth(e.year, e.month) {
			e.live.Set(l.UserID, l.Date, l.Code)
		}
	}
	e.rules = planning.NewRules(e.year, e.month, e.live, st.PrevMonth, st.NextMonth, e.catalog, e.cfg.MandatoryRestDays)

	// 稳定顺序（sortOrder, id）；配置了种子时按种子打乱
	e.employees = make([]roster.Employee, 0, len(st.Employees))
	for _, emp := range st.Employees {
		if emp.Visible {
			e.employees = append(e.employees, emp)
		}
	}
	if e.cfg.Seed != nil {
		rng := rand.New(rand.NewSource(*e.cfg.Seed))
		rng.Shuffle(len(e.employees), func(i, j int) {
			e.employees[i], e.employees[j] = e.employees[j], e.employees[i]
		})
	}
	for _, emp := range e.employees {
		e.byID[emp.ID] = emp
		for d, code := range e.live[emp.ID] {
			e.hours[emp.ID] += planning.HoursFor(e.catalog, code, d)
			e.countRatio(emp.ID, code, 1)
		}
	}
	return e
}

// fillSlot 为 (d, code) 补足人数；所有轮次都无法分配时记录缺口
func (e *engine) fillSlot(d roster.Date, code string, required int) {
	if required <= 0 {
		return
	}
	ds := e.scanDay(d)
	for {
		needed := required - len(ds.byShift[code])
		if needed <= 0 {
			return
		}
		n := e.fairRound(ds, code, needed)
		if n > 0 {
			e.result.ByRound[1] += n
			continue
		}
		for round := 2; round <= 1+e.cfg.GeneratorFillRounds && n == 0; round++ {
			n = e.fillRound(ds, code, needed, round)
			e.result.ByRound[round] += n
		}
		if n == 0 {
			e.result.Shortfalls = append(e.result.Shortfalls, Shortfall{
				Date:     d,
				Code:     code,
				Required: required,
				Assigned: len(ds.byShift[code]),
			})
			return
		}
	}
}

// assign 写入排班并更新全部跟踪状态
func (e *engine) assign(ds *dayState, userID int, code string) {
	e.live.Set(userID, ds.date, code)
	e.hours[userID] += planning.HoursFor(e.catalog, code, ds.date)
	e.countRatio(userID, code, 1)
	ds.markAssigned(e.byID[userID], code)
	e.result.Assigned++
}

func (e *engine) countRatio(userID int, code string, delta int) {
	switch code {
	case roster.CodeDay, roster.CodeFriday:
		e.dayCount[userID] += delta
	case roster.CodeNight:
		e.nightCount[userID] += delta
	}
}
