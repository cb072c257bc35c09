package pipeline

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"dienstplan/internal/planning"
	"dienstplan/internal/roster"
	"dienstplan/internal/view"
	pkgerrors "dienstplan/pkg/errors"
)

// ── 测试辅助 ──

func mar(day int) roster.Date { return roster.NewDate(2025, time.March, day) }

type staticSource struct{ snap *planning.MonthSnapshot }

func (s *staticSource) LoadMonthSnapshot(ctx context.Context, year int, month time.Month, progress planning.ProgressFunc) (*planning.MonthSnapshot, error) {
	return s.snap, ctx.Err()
}

type fakeWriter struct {
	mu        sync.Mutex
	calls     []string
	failShift bool
	failWish  bool
	failLock  bool
}

func (f *fakeWriter) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeWriter) UpsertShift(ctx context.Context, userID int, d roster.Date, code string) error {
	f.record("shift:" + d.String() + ":" + code)
	if f.failShift {
		return errors.New("连接中断")
	}
	return nil
}

func (f *fakeWriter) UpsertLock(ctx context.Context, userID int, d roster.Date, code string) error {
	f.record("lock:" + d.String() + ":" + code)
	if f.failLock {
		return errors.New("连接中断")
	}
	return nil
}

func (f *fakeWriter) DeleteLock(ctx context.Context, userID int, d roster.Date) error {
	f.record("unlock:" + d.String())
	if f.failLock {
		return errors.New("连接中断")
	}
	return nil
}

func (f *fakeWriter) SaveWishTransition(ctx context.Context, tr planning.WishTransition) error {
	f.record("wish:" + string(tr.After.Status))
	if f.failWish {
		return errors.New("连接中断")
	}
	return nil
}

func (f *fakeWriter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testCatalog() *roster.ShiftCatalog {
	return roster.NewShiftCatalog([]roster.ShiftType{
		{Code: roster.CodeDay, Hours: 12, StartTime: "06:00", EndTime: "18:00", CheckUnderstaffing: true, SortOrder: 1, Visible: true},
		{Code: roster.CodeNight, Hours: 12, StartTime: "18:00", EndTime: "06:00", CheckUnderstaffing: true, SortOrder: 2, Visible: true},
		{Code: roster.CodeFriday, Hours: 8, StartTime: "06:00", EndTime: "14:00", SortOrder: 3, Visible: true},
		{Code: roster.CodeVacation, Hours: 0, SortOrder: 10, Visible: true},
		{Code: roster.CodeX, Hours: 0, SortOrder: 11, Visible: true},
	})
}

// testSnapshot 员工 7、8；7 在 3 月 15 日上 T.，8 在 3 月 20 日锁定 T.，9 有待审批 WF 愿望
func testSnapshot() *planning.MonthSnapshot {
	return &planning.MonthSnapshot{
		Year:  2025,
		Month: time.March,
		Employees: []roster.Employee{
			{ID: 7, Surname: "Vogt", SortOrder: 1, Visible: true, Prefs: roster.DefaultPrefs()},
			{ID: 8, Surname: "Wolf", SortOrder: 2, Visible: true, Prefs: roster.DefaultPrefs()},
			{ID: 9, Surname: "Zeller", SortOrder: 3, Visible: true, Prefs: roster.DefaultPrefs()},
		},
		Locks: []roster.Lock{{UserID: 8, Date: mar(20), Code: roster.CodeDay}},
		Shifts: []planning.ShiftRow{
			{UserID: 7, Date: mar(14), Code: roster.CodeNight},
			{UserID: 7, Date: mar(15), Code: roster.CodeDay},
			{UserID: 8, Date: mar(15), Code: roster.CodeNight},
			{UserID: 8, Date: mar(20), Code: roster.CodeDay},
		},
		Wishes: []roster.WishRequest{
			{ID: 21, UserID: 9, Date: mar(18), RequestedCode: roster.CodeWishFree, Status: roster.WishPending, RequestedBy: roster.RequestedByUser},
		},
	}
}

type fixture struct {
	model  *planning.Manager
	view   *view.GridView
	writer *fakeWriter
	pipe   *Pipeline
}

func setupPipeline(t *testing.T, dispatch Dispatcher) *fixture {
	t.Helper()
	staffing := roster.NewStaffingRules(roster.StaffingRuleSet{
		Daily: map[string]int{roster.CodeDay: 1, roster.CodeNight: 1},
	}, nil, nil)
	m := planning.NewManager(&staticSource{snap: testSnapshot()}, testCatalog(), staffing, roster.DefaultGeneratorConfig(), zap.NewNop())
	if err := m.Load(context.Background(), 2025, time.March, nil); err != nil {
		t.Fatalf("Load 应成功: %v", err)
	}
	f := &fixture{model: m, view: view.NewGridView(), writer: &fakeWriter{}}
	f.pipe = New(m, f.view, f.writer, dispatch, Options{Debounce: 10 * time.Millisecond, QueueWarnAt: 8}, zap.NewNop())
	f.pipe.RepaintAll()
	return f
}

func settle(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Settle(ctx); err != nil {
		t.Fatalf("Settle 失败: %v", err)
	}
}

type cacheState struct {
	Schedule   planning.ShiftGrid
	Hours      map[int]float64
	Counts     map[int]map[string]int
	Violations []planning.Cell
	Grid       view.Grid
}

func capture(f *fixture) cacheState {
	counts := make(map[int]map[string]int)
	for _, d := range roster.MonthDates(2025, time.March) {
		counts[d.Day] = f.model.DailyCounts(d)
	}
	return cacheState{
		Schedule:   f.model.ScheduleCopy(),
		Hours:      f.model.AllUserHours(),
		Counts:     counts,
		Violations: f.model.Violations(),
		Grid:       f.view.Snapshot([]int{7, 8, 9}),
	}
}

// ════════════════════════════════════════════════════════════
// Edit
// ════════════════════════════════════════════════════════════

func TestPipeline_Edit_RoundTripRestoresState(t *testing.T) {
	d := NewLoopDispatcher(zap.NewNop())
	defer d.Close()
	f := setupPipeline(t, d)
	ctx := context.Background()
	before := capture(f)

	for _, code := range []string{roster.CodeNight, roster.CodeDay} {
		var err error
		if doErr := d.Do(ctx, func() { _, err = f.pipe.Edit(7, mar(15), code) }); doErr != nil {
			t.Fatal(doErr)
		}
		if err != nil {
			t.Fatalf("Edit(%s) 失败: %v", code, err)
		}
	}
	settle(t, f.pipe)

	after := capture(f)
	if !reflect.DeepEqual(before, after) {
		t.Errorf("往返编辑后状态应一致\n期望 %+v\n实际 %+v", before, after)
	}
	if got := f.view.Text(7, 15); got != roster.CodeDay {
		t.Errorf("期望显示 T.，实际 %q", got)
	}
	if calls := f.writer.Calls(); len(calls) != 2 || calls[0] != "shift:2025-03-15:N." || calls[1] != "shift:2025-03-15:T." {
		t.Errorf("写库顺序不符: %v", calls)
	}
}

func TestPipeline_Edit_UpdatesSecondaryAndConflicts(t *testing.T) {
	f := setupPipeline(t, &InlineDispatcher{})

	// 7 在 14 日夜班后 15 日日班，初始即为冲突
	if !f.view.Cell(7, 15).Conflict {
		t.Fatalf("初始重绘应标记 N.→T. 冲突")
	}
	if _, err := f.pipe.Edit(7, mar(15), ""); err != nil {
		t.Fatalf("Edit 失败: %v", err)
	}
	// 主阶段同步完成
	if got := f.view.Text(7, 15); got != "" {
		t.Errorf("主阶段后应已重绘为空，实际 %q", got)
	}
	if f.view.Pending() != 0 {
		t.Errorf("主阶段后应已 Flush")
	}
	settle(t, f.pipe)

	if f.view.Cell(7, 15).Conflict {
		t.Errorf("清空后冲突标记应消失")
	}
	if got := f.view.Hours(7); got != 12 {
		t.Errorf("期望工时 12，实际 %v", got)
	}
	day := f.view.Day(15)
	if day.Counts[roster.CodeDay] != 0 || day.Counts[roster.CodeNight] != 1 {
		t.Errorf("15 日统计不符: %v", day.Counts)
	}
	if len(day.Understaffed) != 1 || day.Understaffed[0] != roster.CodeDay {
		t.Errorf("期望 T. 缺员，实际 %v", day.Understaffed)
	}
}

func TestPipeline_DayCountsShowRequired(t *testing.T) {
	f := setupPipeline(t, &InlineDispatcher{})

	day := f.view.Day(15)
	if day.Required[roster.CodeDay] != 1 || day.Label(roster.CodeDay) != "1/1" {
		t.Errorf("15 日应显示 1/1，实际 %+v", day)
	}

	// 3 月 4 日为周二：6 计入缓存但不显示；3 月 7 日为周五正常显示
	if _, err := f.pipe.Edit(9, mar(4), roster.CodeFriday); err != nil {
		t.Fatalf("Edit 失败: %v", err)
	}
	if _, err := f.pipe.Edit(9, mar(7), roster.CodeFriday); err != nil {
		t.Fatalf("Edit 失败: %v", err)
	}
	settle(t, f.pipe)

	if f.model.DailyCounts(mar(4))[roster.CodeFriday] != 1 {
		t.Errorf("缓存中应记录 6")
	}
	if _, shown := f.view.Day(4).Counts[roster.CodeFriday]; shown {
		t.Errorf("非周五不应显示 6 的人数: %+v", f.view.Day(4))
	}
	if got := f.view.Day(7).Counts[roster.CodeFriday]; got != 1 {
		t.Errorf("周五应显示 6 的人数 1，实际 %d", got)
	}
}

func TestPipeline_Edit_LockedCellWarnsOnly(t *testing.T) {
	f := setupPipeline(t, &InlineDispatcher{})
	f.view.DrainNotices()

	_, err := f.pipe.Edit(8, mar(20), roster.CodeNight)
	if !errors.Is(err, pkgerrors.ErrCellLocked) {
		t.Fatalf("期望 ErrCellLocked，实际 %v", err)
	}
	settle(t, f.pipe)

	if got := f.model.ShiftAt(8, mar(20)); got != roster.CodeDay {
		t.Errorf("锁定格子不应改变，实际 %q", got)
	}
	notices := f.view.DrainNotices()
	if len(notices) != 1 || notices[0].Level != "warning" {
		t.Errorf("期望一条警告，实际 %v", notices)
	}
	if calls := f.writer.Calls(); len(calls) != 0 {
		t.Errorf("锁定格子不应写库: %v", calls)
	}
}

func TestPipeline_Edit_WriteFailureCompensates(t *testing.T) {
	f := setupPipeline(t, &InlineDispatcher{})
	f.writer.failShift = true
	before := capture(f)
	f.view.DrainNotices()

	if _, err := f.pipe.Edit(7, mar(16), roster.CodeNight); err != nil {
		t.Fatalf("乐观更新不应报错: %v", err)
	}
	settle(t, f.pipe)

	if got := f.model.ShiftAt(7, mar(16)); got != "" {
		t.Errorf("写库失败后应回滚，实际 %q", got)
	}
	if after := capture(f); !reflect.DeepEqual(before, after) {
		t.Errorf("回滚后状态应与编辑前一致\n期望 %+v\n实际 %+v", before, after)
	}
	notices := f.view.DrainNotices()
	if len(notices) != 1 || notices[0].Level != "error" {
		t.Fatalf("期望一条错误提示，实际 %v", notices)
	}
	if !strings.Contains(notices[0].Message, "2025-03-16") {
		t.Errorf("错误提示应包含日期: %q", notices[0].Message)
	}
}

func TestPipeline_Edit_UnknownEmployee(t *testing.T) {
	f := setupPipeline(t, &InlineDispatcher{})
	if _, err := f.pipe.Edit(99, mar(3), roster.CodeDay); !errors.Is(err, planning.ErrUnknownEmployee) {
		t.Errorf("期望 ErrUnknownEmployee，实际 %v", err)
	}
	if _, err := f.pipe.Edit(7, roster.NewDate(2025, time.April, 1), roster.CodeDay); !errors.Is(err, planning.ErrDateOutOfMonth) {
		t.Errorf("期望 ErrDateOutOfMonth，实际 %v", err)
	}
}

// ════════════════════════════════════════════════════════════
// 锁定 / 愿望
// ════════════════════════════════════════════════════════════

func TestPipeline_LockRoundTrip(t *testing.T) {
	f := setupPipeline(t, &InlineDispatcher{})

	if _, err := f.pipe.SetLock(9, mar(3), roster.CodeNight); err != nil {
		t.Fatalf("SetLock 失败: %v", err)
	}
	if st := f.view.Cell(9, 3); st.Text != roster.CodeNight || !st.Locked {
		t.Errorf("锁定后显示不符: %+v", st)
	}
	if _, err := f.pipe.Edit(9, mar(3), roster.CodeDay); !errors.Is(err, pkgerrors.ErrCellLocked) {
		t.Errorf("锁定后编辑应被拒绝，实际 %v", err)
	}
	ok, err := f.pipe.RemoveLock(9, mar(3))
	if err != nil || !ok {
		t.Fatalf("RemoveLock 失败: ok=%v err=%v", ok, err)
	}
	settle(t, f.pipe)

	if st := f.view.Cell(9, 3); st.Text != roster.CodeNight || st.Locked {
		t.Errorf("解锁后排班保留、锁标记消失: %+v", st)
	}
	want := []string{"lock:2025-03-03:N.", "shift:2025-03-03:N.", "unlock:2025-03-03"}
	if calls := f.writer.Calls(); !reflect.DeepEqual(calls, want) {
		t.Errorf("期望 %v，实际 %v", want, calls)
	}
	if got := f.view.Hours(9); got != 12 {
		t.Errorf("期望工时 12，实际 %v", got)
	}
}

func TestPipeline_SetLock_FailureRestoresPreviousState(t *testing.T) {
	f := setupPipeline(t, &InlineDispatcher{})
	f.writer.failLock = true

	if _, err := f.pipe.SetLock(9, mar(4), roster.CodeDay); err != nil {
		t.Fatalf("SetLock 失败: %v", err)
	}
	settle(t, f.pipe)

	if _, locked := f.model.LockCode(9, mar(4)); locked {
		t.Errorf("写库失败后锁应被撤销")
	}
	if got := f.model.ShiftAt(9, mar(4)); got != "" {
		t.Errorf("写库失败后排班应回滚，实际 %q", got)
	}
	if st := f.view.Cell(9, 4); st != (view.CellState{}) {
		t.Errorf("视图应恢复为空格子: %+v", st)
	}
}

func TestPipeline_Wishes(t *testing.T) {
	f := setupPipeline(t, &InlineDispatcher{})

	tr, err := f.pipe.AcceptWish(21)
	if err != nil {
		t.Fatalf("AcceptWish 失败: %v", err)
	}
	if tr.Cell.NewCode != roster.CodeX {
		t.Errorf("接受 WF 应体现为 X，实际 %q", tr.Cell.NewCode)
	}
	settle(t, f.pipe)
	if got := f.view.Text(9, 18); got != roster.CodeX {
		t.Errorf("期望显示 X，实际 %q", got)
	}

	if _, err := f.pipe.RejectWish(21, "人手不足"); err != nil {
		t.Fatalf("RejectWish 失败: %v", err)
	}
	settle(t, f.pipe)
	if got := f.view.Text(9, 18); got != "" {
		t.Errorf("拒绝后应清空体现的 X，实际 %q", got)
	}
	w, _ := f.model.Wish(21)
	if w.Status != roster.WishAdminRejected || w.RejectionReason == nil || *w.RejectionReason != "人手不足" {
		t.Errorf("拒绝状态不符: %+v", w)
	}

	if _, err := f.pipe.WithdrawWish(21); err != nil {
		t.Fatalf("WithdrawWish 失败: %v", err)
	}
	settle(t, f.pipe)
	if _, ok := f.model.Wish(21); ok {
		t.Errorf("撤回后愿望应被删除")
	}
	if _, err := f.pipe.AcceptWish(21); !errors.Is(err, planning.ErrWishNotFound) {
		t.Errorf("期望 ErrWishNotFound，实际 %v", err)
	}
}

func TestPipeline_Wish_FailureRestores(t *testing.T) {
	f := setupPipeline(t, &InlineDispatcher{})
	f.writer.failWish = true

	if _, err := f.pipe.AcceptWish(21); err != nil {
		t.Fatalf("AcceptWish 失败: %v", err)
	}
	settle(t, f.pipe)

	w, ok := f.model.Wish(21)
	if !ok || w.Status != roster.WishPending {
		t.Errorf("写库失败后愿望应恢复为待审批: %+v", w)
	}
	if got := f.model.ShiftAt(9, mar(18)); got != "" {
		t.Errorf("写库失败后格子应清空，实际 %q", got)
	}
}
