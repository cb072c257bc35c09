package roster

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownShift 班次代码不在目录中
var ErrUnknownShift = errors.New("未知的班次代码")

const minutesPerDay = 24 * 60

// ShiftType 班次类型（对应 shift_types + shift_order）
type ShiftType struct {
	Code               string  `json:"code"`
	Name               string  `json:"name"`
	Hours              float64 `json:"hours"`
	Description        string  `json:"description,omitempty"`
	Color              string  `json:"color"`
	StartTime          string  `json:"start_time,omitempty"` // HH:MM，可为空
	EndTime            string  `json:"end_time,omitempty"`
	CheckUnderstaffing bool    `json:"check_understaffing"`
	SortOrder          int     `json:"sort_order"`
	Visible            bool    `json:"visible"`
}

// ShiftCatalog 班次目录，加载后只读；管理员修改后整体重建
type ShiftCatalog struct {
	types map[string]ShiftType
	order []string
}

// NewShiftCatalog 按 SortOrder、Code 排序建立目录
func NewShiftCatalog(types []ShiftType) *ShiftCatalog {
	c := &ShiftCatalog{types: make(map[string]ShiftType, len(types))}
	for _, t := range types {
		c.types[t.Code] = t
	}
	c.order = make([]string, 0, len(c.types))
	for code := range c.types {
		c.order = append(c.order, code)
	}
	sort.Slice(c.order, func(i, j int) bool {
		a, b := c.types[c.order[i]], c.types[c.order[j]]
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.Code < b.Code
	})
	return c
}

// Get 查询班次
func (c *ShiftCatalog) Get(code string) (ShiftType, bool) {
	t, ok := c.types[code]
	return t, ok
}

// Hours 班次时长；未知代码按 0 计
func (c *ShiftCatalog) Hours(code string) float64 {
	if c == nil {
		return 0
	}
	return c.types[code].Hours
}

// ChecksUnderstaffing 该班次是否参与缺员提示
func (c *ShiftCatalog) ChecksUnderstaffing(code string) bool {
	return c.types[code].CheckUnderstaffing
}

// Ordered 按显示顺序返回班次
func (c *ShiftCatalog) Ordered(visibleOnly bool) []ShiftType {
	out := make([]ShiftType, 0, len(c.order))
	for _, code := range c.order {
		t := c.types[code]
		if visibleOnly && !t.Visible {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Codes 所有代码（显示顺序）
func (c *ShiftCatalog) Codes() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Interval 班次的 [start, end) 分钟区间，跨夜班次 end > 1440
func (c *ShiftCatalog) Interval(code string) (start, end int, ok bool) {
	t, found := c.types[code]
	if !found || t.StartTime == "" || t.EndTime == "" {
		return 0, 0, false
	}
	s, err1 := parseClock(t.StartTime)
	e, err2 := parseClock(t.EndTime)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if e <= s {
		e += minutesPerDay
	}
	return s, e, true
}

// Overlaps 两个班次时间段是否相交；休息类代码恒为 false
func (c *ShiftCatalog) Overlaps(a, b string) bool {
	if IsFreeIndicator(a) || IsFreeIndicator(b) {
		return false
	}
	as, ae, ok1 := c.Interval(a)
	bs, be, ok2 := c.Interval(b)
	if !ok1 || !ok2 {
		return false
	}
	return as < be && bs < ae
}

// parseClock 解析 HH:MM 或 HH:MM:SS
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("无效的时刻 %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("无效的时刻 %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("无效的时刻 %q: %w", s, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 {
		return 0, fmt.Errorf("无效的时刻 %q", s)
	}
	return h*60 + m, nil
}
