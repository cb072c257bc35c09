package roster

import (
	"errors"
	"testing"
	"time"
)

func testCatalog() *ShiftCatalog {
	return NewShiftCatalog([]ShiftType{
		{Code: CodeDay, Name: "Tagdienst", Hours: 12, StartTime: "06:00", EndTime: "18:00", CheckUnderstaffing: true, SortOrder: 1, Visible: true},
		{Code: CodeNight, Name: "Nachtdienst", Hours: 12, StartTime: "18:00", EndTime: "06:00", CheckUnderstaffing: true, SortOrder: 2, Visible: true},
		{Code: CodeFriday, Name: "Freitag", Hours: 8, StartTime: "06:00", EndTime: "14:00", CheckUnderstaffing: true, SortOrder: 3, Visible: true},
		{Code: CodeQA, Name: "Quartalsausbildung", Hours: 8, StartTime: "08:00", EndTime: "16:00", SortOrder: 4, Visible: true},
		{Code: CodeVacation, Name: "Urlaub", SortOrder: 5, Visible: false},
	})
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want Date
		err  bool
	}{
		{"2025-03-10", NewDate(2025, time.March, 10), false},
		{"10.03.2025", NewDate(2025, time.March, 10), false},
		{"2025-03-10 00:00:00", NewDate(2025, time.March, 10), false},
		{"2025-13-01", Date{}, true},
		{"", Date{}, true},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if tt.err {
			if !errors.Is(err, ErrInvalidDate) {
				t.Errorf("ParseDate(%q) 期望 ErrInvalidDate，实际: %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseDate(%q) 期望 %v，实际 %v (%v)", tt.in, tt.want, got, err)
		}
	}
}

func TestDate_AddDaysAcrossMonth(t *testing.T) {
	d := NewDate(2025, time.March, 1).AddDays(-1)
	if d != NewDate(2025, time.February, 28) {
		t.Errorf("期望 2025-02-28，实际 %s", d)
	}
	if DaysInMonth(2024, time.February) != 29 {
		t.Error("2024 年 2 月应为 29 天")
	}
}

func TestShiftCatalog_Overlaps(t *testing.T) {
	c := testCatalog()
	if !c.Overlaps(CodeDay, CodeDay) {
		t.Error("相同班次应重叠")
	}
	if c.Overlaps(CodeDay, CodeNight) {
		t.Error("T. 与 N. 不应重叠")
	}
	if !c.Overlaps(CodeDay, CodeQA) {
		t.Error("T. 与 QA 应重叠")
	}
	if c.Overlaps(CodeVacation, CodeDay) {
		t.Error("休息类代码恒不重叠")
	}
	if got := c.Codes(); got[0] != CodeDay || got[len(got)-1] != CodeVacation {
		t.Errorf("显示顺序错误: %v", got)
	}
	if len(c.Ordered(true)) != 4 {
		t.Errorf("可见班次期望 4 个，实际 %d", len(c.Ordered(true)))
	}
}

func TestStaffingRules_Resolve(t *testing.T) {
	rules := NewStaffingRules(StaffingRuleSet{
		Daily:   map[string]int{CodeDay: 2, CodeNight: 1},
		MonThu:  map[string]int{CodeDay: 3},
		Friday:  map[string]int{CodeFriday: 1},
		Weekend: map[string]int{CodeDay: 1},
		Holiday: map[string]int{CodeDay: 1, CodeNight: 2, CodeFriday: 1},
		EventOverrides: map[string]map[string]int{
			EventShooting: {CodeShooting: 4},
		},
	}, map[Date]string{
		NewDate(2025, time.March, 14): "Feiertag",
	}, map[Date]string{
		NewDate(2025, time.March, 11): EventQuarterlyTraining,
		NewDate(2025, time.March, 12): EventShooting,
	})

	tests := []struct {
		name string
		d    Date
		want map[string]int
	}{
		{"周一至周四", NewDate(2025, time.March, 10), map[string]int{CodeDay: 3, CodeNight: 1}},
		{"周五", NewDate(2025, time.March, 7), map[string]int{CodeDay: 2, CodeNight: 1, CodeFriday: 1}},
		{"周末", NewDate(2025, time.March, 8), map[string]int{CodeDay: 1, CodeNight: 1}},
		{"节假日周五不要求 6", NewDate(2025, time.March, 14), map[string]int{CodeDay: 1, CodeNight: 2}},
		{"季度培训默认 1 人", NewDate(2025, time.March, 11), map[string]int{CodeDay: 3, CodeNight: 1, CodeQA: 1}},
		{"射击训练覆盖人数", NewDate(2025, time.March, 12), map[string]int{CodeDay: 3, CodeNight: 1, CodeShooting: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rules.Resolve(tt.d)
			if len(got) != len(tt.want) {
				t.Fatalf("期望 %v，实际 %v", tt.want, got)
			}
			for code, n := range tt.want {
				if got[code] != n {
					t.Errorf("%s 期望 %d，实际 %d", code, n, got[code])
				}
			}
		})
	}

	under := rules.Understaffed(NewDate(2025, time.March, 10), map[string]int{CodeDay: 3}, testCatalog())
	if len(under) != 1 || under[0] != CodeNight {
		t.Errorf("期望缺员 [N.]，实际 %v", under)
	}
}

func TestWishRequest_Manifest(t *testing.T) {
	c := testCatalog()
	d := NewDate(2025, time.March, 3)

	wf, err := NewWishRequest(1, 7, d, CodeWishFree, string(WishAdminAccepted), RequestedByUser, nil, c)
	if err != nil {
		t.Fatalf("构造愿望失败: %v", err)
	}
	if code, ok := wf.ManifestCode(""); !ok || code != CodeX {
		t.Errorf("WF 接受后空格子应体现为 X，实际 %q %v", code, ok)
	}
	if _, ok := wf.ManifestCode(CodeDay); ok {
		t.Error("已有具体班次时 WF 不应体现")
	}
	if !wf.BlocksDay(75) || wf.BlocksDay(40) {
		t.Error("尊重度 ≥ 50 时 WF 才阻止排班")
	}

	tn, _ := NewWishRequest(2, 7, d, CodeWishDayOrNight, string(WishUserAccepted), RequestedByAdmin, nil, c)
	if _, ok := tn.ManifestCode(""); ok {
		t.Error("T/N 愿望不体现到格子")
	}

	if _, err := NewWishRequest(3, 7, d, "ZZ", string(WishPending), RequestedByUser, nil, c); !errors.Is(err, ErrInvalidWishCode) {
		t.Errorf("期望 ErrInvalidWishCode，实际: %v", err)
	}
	if _, err := NewWishRequest(4, 7, d, CodeDay, "kaputt", RequestedByUser, nil, c); !errors.Is(err, ErrInvalidWishStatus) {
		t.Errorf("期望 ErrInvalidWishStatus，实际: %v", err)
	}
}

func TestGeneratorConfig_PresetsAndDecode(t *testing.T) {
	for _, name := range PresetNames() {
		if _, err := PresetConfig(name); err != nil {
			t.Errorf("预设 %s 应存在: %v", name, err)
		}
	}
	if _, err := PresetConfig("Chaos"); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("期望 ErrUnknownPreset，实际: %v", err)
	}

	// v1 blob：缺少新字段，按默认补齐
	cfg, err := DecodeGeneratorConfig([]byte(`{"version":1,"fairness_threshold":12,"isolation_pattern":"weird"}`))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if cfg.FairnessThreshold != 12 {
		t.Errorf("期望 FairnessThreshold=12，实际 %v", cfg.FairnessThreshold)
	}
	if cfg.IsolationPattern != IsolationFreeWorkFree || cfg.Version != GeneratorConfigVersion {
		t.Errorf("未正确归一化: %+v", cfg)
	}
	if cfg.WunschfreiRespectLevel != 75 || cfg.GeneratorFillRounds != 3 {
		t.Errorf("旧版本缺失字段应补默认值: %+v", cfg)
	}
}

func TestEmployee_ActiveIn(t *testing.T) {
	act := NewDate(2025, time.April, 1)
	arch := NewDate(2025, time.February, 10)
	tests := []struct {
		name string
		e    Employee
		want bool
	}{
		{"普通", Employee{ID: 1}, true},
		{"下月才激活", Employee{ID: 2, ActivationDate: &act}, false},
		{"上月已归档", Employee{ID: 3, Archived: true, ArchivedDate: &arch}, false},
		{"归档无日期", Employee{ID: 4, Archived: true}, false},
	}
	for _, tt := range tests {
		if got := tt.e.ActiveIn(2025, time.March); got != tt.want {
			t.Errorf("%s: 期望 %v，实际 %v", tt.name, tt.want, got)
		}
	}
}

func TestLockStore_InMonthSorted(t *testing.T) {
	s := NewLockStore([]Lock{
		{UserID: 2, Date: NewDate(2025, time.March, 3), Code: CodeDay},
		{UserID: 1, Date: NewDate(2025, time.March, 9), Code: CodeNight},
		{UserID: 1, Date: NewDate(2025, time.March, 2), Code: CodeQA},
		{UserID: 1, Date: NewDate(2025, time.April, 1), Code: CodeQA},
	})
	got := s.InMonth(2025, time.March)
	if len(got) != 3 || got[0].Date.Day != 2 || got[1].Date.Day != 9 || got[2].UserID != 2 {
		t.Errorf("排序错误: %+v", got)
	}
	cp := s.Clone()
	cp.Remove(1, NewDate(2025, time.March, 2))
	if !s.IsLocked(1, NewDate(2025, time.March, 2)) {
		t.Error("Clone 应为深拷贝")
	}
}
