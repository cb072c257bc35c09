package repository

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dienstplan/internal/model"
	"dienstplan/internal/planning"
	"dienstplan/internal/roster"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开 sqlite 失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	// :memory: 每个连接是独立的库
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("AutoMigrate 失败: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }

func mustCreate(t *testing.T, db *gorm.DB, v interface{}) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("写入测试数据失败: %v", err)
	}
}

func seedRoster(t *testing.T, db *gorm.DB) {
	t.Helper()
	mustCreate(t, db, &[]model.User{
		{ID: 1, Vorname: "Anna", Name: "Berg"},
		{ID: 2, Vorname: "Ben", Name: "Adler", Diensthund: "Rex", ActivationDate: strPtr("2025-02-10")},
		{ID: 3, Vorname: "Carl", Name: "Ziegler", IsArchived: true, ArchivedDate: strPtr("2025-01-31")},
	})
	mustCreate(t, db, &[]model.UserOrder{
		{UserID: 2, SortOrder: 0, IsVisible: true},
		{UserID: 1, SortOrder: 1, IsVisible: false},
	})
	mustCreate(t, db, &[]model.ShiftSchedule{
		{UserID: 1, ShiftDate: "2025-01-31", ShiftAbbrev: "T."}, // 窗口外
		{UserID: 1, ShiftDate: "2025-02-01", ShiftAbbrev: "N."},
		{UserID: 1, ShiftDate: "2025-03-15", ShiftAbbrev: "T."},
		{UserID: 2, ShiftDate: "2025-04-02", ShiftAbbrev: "N."},
		{UserID: 2, ShiftDate: "2025-04-03", ShiftAbbrev: "N."}, // 窗口外
	})
	mustCreate(t, db, &model.ShiftLock{UserID: 2, ShiftDate: "2025-03-20", ShiftAbbrev: "N."})
	mustCreate(t, db, &[]model.VacationRequest{
		{ID: 1, UserID: 1, StartDate: "2025-03-03", EndDate: "2025-03-05", Status: "Genehmigt"},
		{ID: 2, UserID: 2, StartDate: "2025-03-10", EndDate: "2025-03-11", Status: "kaputt"},
		{ID: 3, UserID: 2, StartDate: "2025-03-12", EndDate: "2025-03-12", Status: "Genehmigt", Archived: true},
	})
	mustCreate(t, db, &[]model.WunschfreiRequest{
		{ID: 10, UserID: 1, RequestDate: "2025-03-18", RequestedShift: "WF", Status: "Ausstehend", RequestedBy: "user"},
		{ID: 11, UserID: 2, RequestDate: "2025-03-19", RequestedShift: "WF", Status: "vielleicht", RequestedBy: "user"},
	})
}

// ═══════════════════════════════════════════════════════════
// Snapshot
// ═══════════════════════════════════════════════════════════

func TestSnapshotRepo_LoadMonth(t *testing.T) {
	db := setupDB(t)
	seedRoster(t, db)
	repo := NewConfigRepo(db)
	if err := repo.Put(context.Background(), model.ConfigKeyUserPrefs,
		[]byte(`{"1":{"excluded_codes":["N."]},"x":{}}`)); err != nil {
		t.Fatal(err)
	}

	var steps []int
	src := NewSnapshotRepo(db, zap.NewNop())
	snap, err := src.LoadMonthSnapshot(context.Background(), 2025, time.March, func(p int, _ string) {
		steps = append(steps, p)
	})
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	if len(snap.Employees) != 3 {
		t.Fatalf("期望 3 名员工，实际 %d", len(snap.Employees))
	}
	byID := map[int]roster.Employee{}
	for _, e := range snap.Employees {
		byID[e.ID] = e
	}
	if byID[1].Visible {
		t.Errorf("员工 1 应不可见")
	}
	if !byID[3].Visible {
		t.Errorf("无顺序记录的员工默认可见")
	}
	if byID[2].ActivationDate == nil || *byID[2].ActivationDate != roster.NewDate(2025, time.February, 10) {
		t.Errorf("激活日期不符: %+v", byID[2].ActivationDate)
	}
	if !byID[1].Prefs.Excludes(roster.CodeNight) || byID[1].Prefs.RatioBias != roster.DefaultRatioBias {
		t.Errorf("个人偏好应叠加在默认值之上，实际 %+v", byID[1].Prefs)
	}
	if byID[2].ServiceDog != "Rex" {
		t.Errorf("期望警犬 Rex，实际 %q", byID[2].ServiceDog)
	}

	if len(snap.Shifts) != 3 {
		t.Errorf("期望窗口内 3 条排班，实际 %d: %+v", len(snap.Shifts), snap.Shifts)
	}
	if len(snap.Locks) != 1 || snap.Locks[0].Code != roster.CodeNight {
		t.Errorf("锁定不符: %+v", snap.Locks)
	}
	if len(snap.Vacations) != 1 || snap.Vacations[0].Status != roster.VacationApproved {
		t.Errorf("应只保留 1 条有效休假，实际 %+v", snap.Vacations)
	}
	if len(snap.Wishes) != 1 || snap.Wishes[0].ID != 10 {
		t.Errorf("状态无效的愿望应被跳过，实际 %+v", snap.Wishes)
	}
	if len(steps) == 0 || steps[len(steps)-1] != 75 {
		t.Errorf("进度回调不符: %v", steps)
	}
}

func TestSnapshotRepo_CancelledContext(t *testing.T) {
	db := setupDB(t)
	seedRoster(t, db)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSnapshotRepo(db, zap.NewNop()).LoadMonthSnapshot(ctx, 2025, time.March, nil)
	if err == nil {
		t.Fatal("已取消的上下文应返回错误")
	}
}

func TestSnapshotRepo_ParseDateSkipsGarbage(t *testing.T) {
	r := &snapshotRepo{logger: zap.NewNop()}
	if _, ok := r.parseDate("shift_schedule", 1, "31.02.x"); ok {
		t.Errorf("无效日期应被跳过")
	}
	d, ok := r.parseDate("shift_schedule", 1, "2025-03-15T00:00:00Z")
	if !ok || d != roster.NewDate(2025, time.March, 15) {
		t.Errorf("带时刻的日期应可解析，实际 %v %v", d, ok)
	}
	if _, ok := r.toVacation(model.VacationRequest{ID: 1, StartDate: "2025-03-05", EndDate: "2025-03-01", Status: "Genehmigt"}); ok {
		t.Errorf("起止颠倒的休假应被跳过")
	}
}

// ═══════════════════════════════════════════════════════════
// Schedule writes
// ═══════════════════════════════════════════════════════════

func TestScheduleRepo_BatchUpsert(t *testing.T) {
	db := setupDB(t)
	seedRoster(t, db)
	repo := NewScheduleRepo(db)
	ctx := context.Background()

	rows := []planning.ShiftRow{
		{UserID: 1, Date: roster.NewDate(2025, time.March, 15), Code: roster.CodeNight}, // 覆盖原有 T.
		{UserID: 1, Date: roster.NewDate(2025, time.March, 16), Code: roster.CodeFree},
		{UserID: 2, Date: roster.NewDate(2025, time.April, 1), Code: roster.CodeDay}, // 计划月外，忽略
		{UserID: 2, Date: roster.NewDate(2025, time.March, 2), Code: ""},             // 空代码，忽略
	}
	if _, err := repo.BatchUpsert(ctx, 2025, time.March, rows); err != nil {
		t.Fatalf("批量写入失败: %v", err)
	}

	got, err := repo.ListMonth(ctx, 2025, time.March)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("期望 3 月 2 条排班，实际 %d: %+v", len(got), got)
	}
	if got[0].ShiftAbbrev != roster.CodeNight {
		t.Errorf("冲突时应更新代码，实际 %q", got[0].ShiftAbbrev)
	}

	var april int64
	db.Model(&model.ShiftSchedule{}).Where("shift_date = ?", "2025-04-01").Count(&april)
	if april != 0 {
		t.Errorf("计划月外的行不应写入")
	}
}

func TestScheduleRepo_CellWrites(t *testing.T) {
	db := setupDB(t)
	seedRoster(t, db)
	repo := NewScheduleRepo(db)
	ctx := context.Background()
	d := roster.NewDate(2025, time.March, 15)

	if err := repo.UpsertShift(ctx, 1, d, roster.CodeNight); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpsertShift(ctx, 1, d, ""); err != nil {
		t.Fatal(err)
	}
	var n int64
	db.Model(&model.ShiftSchedule{}).Where("user_id = ? AND shift_date = ?", 1, "2025-03-15").Count(&n)
	if n != 0 {
		t.Errorf("空代码应删除该行，实际剩余 %d", n)
	}

	if err := repo.UpsertLock(ctx, 2, roster.NewDate(2025, time.March, 20), roster.CodeDay); err != nil {
		t.Fatal(err)
	}
	var lock model.ShiftLock
	db.Where("user_id = ?", 2).First(&lock)
	if lock.ShiftAbbrev != roster.CodeDay {
		t.Errorf("锁定应被更新为 T.，实际 %q", lock.ShiftAbbrev)
	}
	if err := repo.DeleteLock(ctx, 2, roster.NewDate(2025, time.March, 20)); err != nil {
		t.Fatal(err)
	}
	db.Model(&model.ShiftLock{}).Count(&n)
	if n != 0 {
		t.Errorf("锁定应被删除，实际剩余 %d", n)
	}
}

func TestScheduleRepo_SaveWishTransition(t *testing.T) {
	db := setupDB(t)
	seedRoster(t, db)
	repo := NewScheduleRepo(db)
	ctx := context.Background()
	d := roster.NewDate(2025, time.March, 18)

	before := roster.WishRequest{ID: 10, UserID: 1, Date: d, RequestedCode: roster.CodeWishFree, Status: roster.WishPending}
	after := before
	after.Status = roster.WishAdminAccepted
	tr := planning.WishTransition{
		Before: before,
		After:  after,
		Cell:   planning.CellChange{UserID: 1, Date: d, OldCode: "", NewCode: roster.CodeX},
	}
	if err := repo.SaveWishTransition(ctx, tr); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	var w model.WunschfreiRequest
	db.First(&w, 10)
	if w.Status != string(roster.WishAdminAccepted) {
		t.Errorf("期望状态 %q，实际 %q", roster.WishAdminAccepted, w.Status)
	}
	var cell model.ShiftSchedule
	db.Where("user_id = ?", 1).Where("shift_date = ?", "2025-03-18").First(&cell)
	if cell.ShiftAbbrev != roster.CodeX {
		t.Errorf("接受的愿望应写入 X，实际 %q", cell.ShiftAbbrev)
	}

	// 撤回：删除申请并清空格子
	withdraw := planning.WishTransition{
		Before:  after,
		Removed: true,
		Cell:    planning.CellChange{UserID: 1, Date: d, OldCode: roster.CodeX, NewCode: ""},
	}
	if err := repo.SaveWishTransition(ctx, withdraw); err != nil {
		t.Fatal(err)
	}
	var n int64
	db.Model(&model.WunschfreiRequest{}).Where("id = ?", 10).Count(&n)
	if n != 0 {
		t.Errorf("撤回后申请应被删除")
	}
	db.Model(&model.ShiftSchedule{}).Where("shift_date = ?", "2025-03-18").Count(&n)
	if n != 0 {
		t.Errorf("撤回后格子应被清空")
	}

	// 不存在的申请
	missing := planning.WishTransition{Before: roster.WishRequest{ID: 999}, After: after}
	if err := repo.SaveWishTransition(ctx, missing); err == nil {
		t.Errorf("不存在的申请应返回错误")
	}
}

// ═══════════════════════════════════════════════════════════
// Catalog & config
// ═══════════════════════════════════════════════════════════

func TestCatalogRepo_ListShiftTypes(t *testing.T) {
	db := setupDB(t)
	mustCreate(t, db, &[]model.ShiftType{
		{ID: 1, Name: "Tag", Abbreviation: "T.", Hours: 12, StartTime: strPtr("06:00"), EndTime: strPtr("18:00"), CheckForUnderstaffing: true},
		{ID: 2, Name: "Urlaub", Abbreviation: "U"},
	})
	repo := NewCatalogRepo(db)
	ctx := context.Background()
	if err := repo.SaveShiftOrder(ctx, []model.ShiftOrder{{Abbreviation: "U", SortOrder: 0, IsVisible: false}}); err != nil {
		t.Fatal(err)
	}

	types, err := repo.ListShiftTypes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 2 {
		t.Fatalf("期望 2 个班次，实际 %d", len(types))
	}
	cat := roster.NewShiftCatalog(types)
	day, _ := cat.Get("T.")
	if day.StartTime != "06:00" || !day.Visible || !day.CheckUnderstaffing {
		t.Errorf("T. 字段不符: %+v", day)
	}
	vac, _ := cat.Get("U")
	if vac.Visible || vac.SortOrder != 0 {
		t.Errorf("U 顺序不符: %+v", vac)
	}
	if ordered := cat.Ordered(false); ordered[0].Code != "U" {
		t.Errorf("有顺序记录的班次应排在前面，实际 %q", ordered[0].Code)
	}
}

func TestConfigRepo_GetPut(t *testing.T) {
	db := setupDB(t)
	repo := NewConfigRepo(db)
	ctx := context.Background()

	got, err := repo.Get(ctx, model.ConfigKeyGenerator)
	if err != nil || got != nil {
		t.Fatalf("不存在的键应返回 nil, nil，实际 %q %v", got, err)
	}
	if err := repo.Put(ctx, model.ConfigKeyGenerator, []byte(`{"version":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Put(ctx, model.ConfigKeyGenerator, []byte(`{"version":2}`)); err != nil {
		t.Fatal(err)
	}
	got, err = repo.Get(ctx, model.ConfigKeyGenerator)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"version":2}` {
		t.Errorf("期望覆盖写入，实际 %s", got)
	}
}
