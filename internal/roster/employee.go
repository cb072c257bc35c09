package roster

import (
	"sort"
	"time"
)

// DefaultRatioBias 日/夜比例偏好的中性值
const DefaultRatioBias = 50

// EmployeePrefs 员工个人排班偏好
type EmployeePrefs struct {
	MinMonthlyHours      *float64 `json:"min_monthly_hours,omitempty"`
	MaxMonthlyHours      *float64 `json:"max_monthly_hours,omitempty"`
	ExcludedCodes        []string `json:"excluded_codes,omitempty"`
	RatioBias            int      `json:"ratio_bias"` // 0=全夜班 100=全日班 50=中性
	MaxSameShiftOverride *int     `json:"max_same_shift_override,omitempty"`
}

// DefaultPrefs 无配置时的偏好
func DefaultPrefs() EmployeePrefs {
	return EmployeePrefs{RatioBias: DefaultRatioBias}
}

// Excludes 是否排除该班次
func (p EmployeePrefs) Excludes(code string) bool {
	for _, c := range p.ExcludedCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Employee 当月在册员工
type Employee struct {
	ID             int
	Surname        string
	GivenName      string
	SortOrder      int
	Visible        bool
	ActivationDate *Date
	Archived       bool
	ArchivedDate   *Date
	ServiceDog     string // 空表示无警犬
	Prefs          EmployeePrefs
}

// DisplayName 显示名
func (e Employee) DisplayName() string {
	if e.GivenName == "" {
		return e.Surname
	}
	return e.Surname + ", " + e.GivenName
}

// ActiveIn 员工是否在该月在岗（激活日期与归档日期与该月有交集）
func (e Employee) ActiveIn(year int, month time.Month) bool {
	first := Date{Year: year, Month: month, Day: 1}
	last := Date{Year: year, Month: month, Day: DaysInMonth(year, month)}
	if e.ActivationDate != nil && e.ActivationDate.After(last) {
		return false
	}
	if e.Archived {
		if e.ArchivedDate == nil || e.ArchivedDate.Before(first) {
			return false
		}
	}
	return true
}

// EmployeeCatalog 当月员工列表（按 SortOrder、ID 排序）
type EmployeeCatalog struct {
	list []Employee
	byID map[int]int
}

// NewEmployeeCatalog 建立员工目录
func NewEmployeeCatalog(employees []Employee) *EmployeeCatalog {
	list := make([]Employee, len(employees))
	copy(list, employees)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].SortOrder != list[j].SortOrder {
			return list[i].SortOrder < list[j].SortOrder
		}
		return list[i].ID < list[j].ID
	})
	c := &EmployeeCatalog{list: list, byID: make(map[int]int, len(list))}
	for i, e := range list {
		c.byID[e.ID] = i
	}
	return c
}

// All 按显示顺序返回全部员工
func (c *EmployeeCatalog) All() []Employee {
	out := make([]Employee, len(c.list))
	copy(out, c.list)
	return out
}

// Get 按 ID 查询
func (c *EmployeeCatalog) Get(id int) (Employee, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Employee{}, false
	}
	return c.list[i], true
}

// Len 员工数
func (c *EmployeeCatalog) Len() int { return len(c.list) }

// IsVisible 是否计入每日统计
func (c *EmployeeCatalog) IsVisible(id int) bool {
	e, ok := c.Get(id)
	return ok && e.Visible
}

// SharingDog 与该员工共用警犬的其他员工
func (c *EmployeeCatalog) SharingDog(id int) []int {
	e, ok := c.Get(id)
	if !ok || e.ServiceDog == "" {
		return nil
	}
	var out []int
	for _, o := range c.list {
		if o.ID != id && o.ServiceDog == e.ServiceDog {
			out = append(out, o.ID)
		}
	}
	return out
}

// PartnerPair 搭档关系，Priority 越小越重要（1 最高）
type PartnerPair struct {
	UserA    int `json:"user_a"`
	UserB    int `json:"user_b"`
	Priority int `json:"priority"`
}

// Other 返回 pair 中的另一方
func (p PartnerPair) Other(id int) (int, bool) {
	switch id {
	case p.UserA:
		return p.UserB, true
	case p.UserB:
		return p.UserA, true
	}
	return 0, false
}

// PartnersOf 筛出包含该员工的搭档关系，按优先级升序
func PartnersOf(pairs []PartnerPair, id int) []PartnerPair {
	var out []PartnerPair
	for _, p := range pairs {
		if _, ok := p.Other(id); ok {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
