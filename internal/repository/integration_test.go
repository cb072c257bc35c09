//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dienstplan/internal/model"
	"dienstplan/internal/planning"
	"dienstplan/internal/repository"
	"dienstplan/internal/roster"
	"dienstplan/pkg/database"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=dienstplan password=dienstplan dbname=dienstplan_test sslmode=disable TimeZone=Europe/Berlin"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	// 走与生产相同的 SQL 迁移（含班次种子数据）
	sqlDB, err := testDB.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取 sql.DB 失败: %v\n", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "迁移失败: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.Exit(code)
}

// setupTestUser 创建一名测试员工并返回清理函数
func setupTestUser(t *testing.T) (user *model.User, cleanup func()) {
	t.Helper()
	ctx := context.Background()

	user = &model.User{
		Vorname: "Test",
		Name:    fmt.Sprintf("Integration-%d", time.Now().UnixNano()),
	}
	if err := testDB.WithContext(ctx).Create(user).Error; err != nil {
		t.Fatalf("创建员工失败: %v", err)
	}

	cleanup = func() {
		testDB.Where("user_id = ?", user.ID).Delete(&model.ShiftSchedule{})
		testDB.Where("user_id = ?", user.ID).Delete(&model.ShiftLock{})
		testDB.Where("user_id = ?", user.ID).Delete(&model.UserOrder{})
		testDB.Where("id = ?", user.ID).Delete(&model.User{})
	}
	return
}

// ═══════════════════════════════════════════════════════════
// Test: Seeded catalog
// ═══════════════════════════════════════════════════════════

func TestCatalog_SeededShiftTypes(t *testing.T) {
	repo := repository.NewRepository(testDB, zap.NewNop())

	types, err := repo.Catalog.ListShiftTypes(context.Background())
	if err != nil {
		t.Fatalf("查询班次失败: %v", err)
	}
	cat := roster.NewShiftCatalog(types)
	for _, code := range []string{roster.CodeDay, roster.CodeNight, roster.CodeFriday, roster.CodeVacation, roster.CodeX} {
		if _, ok := cat.Get(code); !ok {
			t.Errorf("种子数据缺少班次 %q", code)
		}
	}
	if !cat.Overlaps(roster.CodeDay, roster.CodeFriday) {
		t.Errorf("T. 与 6 应时间重叠")
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Batch upsert + snapshot round trip
// ═══════════════════════════════════════════════════════════

func TestBatchUpsert_SnapshotRoundTrip(t *testing.T) {
	user, cleanup := setupTestUser(t)
	defer cleanup()

	repo := repository.NewRepository(testDB, zap.NewNop())
	ctx := context.Background()
	d := func(day int) roster.Date { return roster.NewDate(2031, time.March, day) }

	rows := []planning.ShiftRow{
		{UserID: user.ID, Date: d(1), Code: roster.CodeDay},
		{UserID: user.ID, Date: d(2), Code: roster.CodeNight},
	}
	if _, err := repo.Schedule.BatchUpsert(ctx, 2031, time.March, rows); err != nil {
		t.Fatalf("批量写入失败: %v", err)
	}
	// 同键再次写入走 ON CONFLICT 更新
	rows[0].Code = roster.CodeFree
	if _, err := repo.Schedule.BatchUpsert(ctx, 2031, time.March, rows); err != nil {
		t.Fatalf("重复写入失败: %v", err)
	}
	if err := repo.Schedule.UpsertLock(ctx, user.ID, d(2), roster.CodeNight); err != nil {
		t.Fatal(err)
	}

	snap, err := repo.Snapshot.LoadMonthSnapshot(ctx, 2031, time.March, nil)
	if err != nil {
		t.Fatalf("加载快照失败: %v", err)
	}
	got := map[roster.Date]string{}
	for _, s := range snap.Shifts {
		if s.UserID == user.ID {
			got[s.Date] = s.Code
		}
	}
	if got[d(1)] != roster.CodeFree || got[d(2)] != roster.CodeNight {
		t.Errorf("快照排班不符: %v", got)
	}
	found := false
	for _, l := range snap.Locks {
		if l.UserID == user.ID && l.Date == d(2) {
			found = true
		}
	}
	if !found {
		t.Errorf("快照应包含锁定")
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Transaction Rollback
// ═══════════════════════════════════════════════════════════

func TestBatchUpsert_RollbackOnError(t *testing.T) {
	user, cleanup := setupTestUser(t)
	defer cleanup()

	repo := repository.NewRepository(testDB, zap.NewNop())
	ctx := context.Background()
	d := func(day int) roster.Date { return roster.NewDate(2031, time.April, day) }

	rows := []planning.ShiftRow{
		{UserID: user.ID, Date: d(1), Code: roster.CodeDay},
		{UserID: user.ID, Date: d(2), Code: strings.Repeat("X", 40)}, // 超出 varchar(10)
	}
	if _, err := repo.Schedule.BatchUpsert(ctx, 2031, time.April, rows); err == nil {
		t.Fatal("超长代码应写入失败")
	}

	list, err := repo.Schedule.ListMonth(ctx, 2031, time.April)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range list {
		if s.UserID == user.ID {
			t.Fatalf("失败的批量写入不应留下任何行，实际 %+v", s)
		}
	}
}
