package generator

import (
	"dienstplan/internal/roster"
)

// dayState 某日的可用性与已分配情况，在 (date, code) 步骤内随分配更新
type dayState struct {
	date        roster.Date
	unavailable map[int]bool
	byShift     map[string][]int
	// dogs 警犬 → 当日已排的工作班次
	dogs map[string][]string
}

// scanDay 一次扫描全部员工：已有代码、锁定、已批准休假、阻止排班的愿望都使当天不可排
func (e *engine) scanDay(d roster.Date) *dayState {
	ds := &dayState{
		date:        d,
		unavailable: make(map[int]bool),
		byShift:     make(map[string][]int),
		dogs:        make(map[string][]string),
	}
	for _, emp := range e.employees {
		code := e.live.Get(emp.ID, d)
		if code != "" {
			ds.unavailable[emp.ID] = true
		}
		if e.state.Locks != nil && e.state.Locks.IsLocked(emp.ID, d) {
			ds.unavailable[emp.ID] = true
		}
		if st, ok := e.state.VacationOn(emp.ID, d); ok && st == roster.VacationApproved {
			ds.unavailable[emp.ID] = true
		}
		if w, ok := e.state.WishOn(emp.ID, d); ok && w.BlocksDay(e.cfg.WunschfreiRespectLevel) {
			ds.unavailable[emp.ID] = true
		}

		if roster.IsPlannable(code) {
			ds.byShift[code] = append(ds.byShift[code], emp.ID)
		}
		if emp.ServiceDog != "" && roster.IsHardWork(code) {
			ds.dogs[emp.ServiceDog] = append(ds.dogs[emp.ServiceDog], code)
		}
	}
	return ds
}

// markAssigned 分配后更新当日状态
func (ds *dayState) markAssigned(emp roster.Employee, code string) {
	ds.unavailable[emp.ID] = true
	ds.byShift[code] = append(ds.byShift[code], emp.ID)
	if emp.ServiceDog != "" {
		ds.dogs[emp.ServiceDog] = append(ds.dogs[emp.ServiceDog], code)
	}
}

// assignedTo 该员工是否已排在 code 上
func (ds *dayState) assignedTo(code string, userID int) bool {
	for _, id := range ds.byShift[code] {
		if id == userID {
			return true
		}
	}
	return false
}

// dogConflict 与共用警犬已排班次相同或时间重叠
func (e *engine) dogConflict(ds *dayState, emp roster.Employee, code string) bool {
	if emp.ServiceDog == "" {
		return false
	}
	for _, other := range ds.dogs[emp.ServiceDog] {
		if other == code || e.rules.CheckTimeOverlap(other, code) {
			return true
		}
	}
	return false
}
