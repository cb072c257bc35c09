package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"dienstplan/internal/model"
	"dienstplan/internal/planning"
	"dienstplan/internal/repository"
	"dienstplan/internal/roster"
)

func mar(day int) roster.Date { return roster.NewDate(2025, time.March, day) }

// ── Mock SnapshotSource ──

type mockSnapshotSource struct {
	mu    sync.Mutex
	snap  func(year int, month time.Month) *planning.MonthSnapshot
	block chan struct{} // 非 nil 时阻塞到关闭或 ctx 取消
	loads int
}

func (m *mockSnapshotSource) LoadMonthSnapshot(ctx context.Context, year int, month time.Month, _ planning.ProgressFunc) (*planning.MonthSnapshot, error) {
	m.mu.Lock()
	m.loads++
	block := m.block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.snap(year, month), ctx.Err()
}

// ── Mock ScheduleRepository ──

type mockScheduleRepo struct {
	mu     sync.Mutex
	shifts map[int]map[roster.Date]string
	locks  map[int]map[roster.Date]string
	wishes []planning.WishTransition
	failed bool
	hold   chan struct{} // 非 nil 时 BatchUpsert 阻塞到关闭
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{
		shifts: make(map[int]map[roster.Date]string),
		locks:  make(map[int]map[roster.Date]string),
	}
}

func set(m map[int]map[roster.Date]string, userID int, d roster.Date, code string) {
	if m[userID] == nil {
		m[userID] = make(map[roster.Date]string)
	}
	if code == "" {
		delete(m[userID], d)
		return
	}
	m[userID][d] = code
}

func (m *mockScheduleRepo) BatchUpsert(_ context.Context, year int, month time.Month, rows []planning.ShiftRow) (int64, error) {
	m.mu.Lock()
	hold := m.hold
	m.mu.Unlock()
	if hold != nil {
		<-hold
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return 0, errors.New("写库失败")
	}
	var n int64
	for _, r := range rows {
		if r.Date.InMonth(year, month) && r.Code != "" {
			set(m.shifts, r.UserID, r.Date, r.Code)
			n++
		}
	}
	return n, nil
}

func (m *mockScheduleRepo) UpsertShift(_ context.Context, userID int, d roster.Date, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set(m.shifts, userID, d, code)
	return nil
}

func (m *mockScheduleRepo) UpsertLock(_ context.Context, userID int, d roster.Date, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set(m.locks, userID, d, code)
	return nil
}

func (m *mockScheduleRepo) DeleteLock(_ context.Context, userID int, d roster.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set(m.locks, userID, d, "")
	return nil
}

func (m *mockScheduleRepo) SaveWishTransition(_ context.Context, tr planning.WishTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wishes = append(m.wishes, tr)
	if tr.Cell.Changed() {
		set(m.shifts, tr.Cell.UserID, tr.Cell.Date, tr.Cell.NewCode)
	}
	return nil
}

func (m *mockScheduleRepo) ListMonth(_ context.Context, year int, month time.Month) ([]model.ShiftSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ShiftSchedule
	for uid, days := range m.shifts {
		for d, code := range days {
			if d.InMonth(year, month) {
				out = append(out, model.ShiftSchedule{UserID: uid, ShiftDate: d.String(), ShiftAbbrev: code})
			}
		}
	}
	return out, nil
}

func (m *mockScheduleRepo) Shift(userID int, d roster.Date) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shifts[userID][d]
}

// rows 当前写入的计划月格子（供快照回读）
func (m *mockScheduleRepo) rows() []planning.ShiftRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []planning.ShiftRow
	for uid, days := range m.shifts {
		for d, code := range days {
			out = append(out, planning.ShiftRow{UserID: uid, Date: d, Code: code})
		}
	}
	return out
}

// ── Mock CatalogRepository ──

type mockCatalogRepo struct {
	types []roster.ShiftType
	calls int
}

func (m *mockCatalogRepo) ListShiftTypes(_ context.Context) ([]roster.ShiftType, error) {
	m.calls++
	return append([]roster.ShiftType(nil), m.types...), nil
}

func (m *mockCatalogRepo) SaveShiftOrder(_ context.Context, _ []model.ShiftOrder) error {
	return nil
}

// ── Mock ConfigRepository ──

type mockConfigRepo struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMockConfigRepo() *mockConfigRepo {
	return &mockConfigRepo{blobs: make(map[string][]byte)}
}

func (m *mockConfigRepo) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blobs[key], nil
}

func (m *mockConfigRepo) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), value...)
	return nil
}

// ── Mock CatalogCache ──

type mockCatalogCache struct {
	raw         []byte
	err         error
	sets        int
	invalidated int
}

func (m *mockCatalogCache) GetCatalog(_ context.Context) ([]byte, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	return m.raw, m.raw != nil, nil
}

func (m *mockCatalogCache) SetCatalog(_ context.Context, raw []byte, _ time.Duration) error {
	m.raw = raw
	m.sets++
	return nil
}

func (m *mockCatalogCache) InvalidateCatalog(_ context.Context) error {
	m.raw = nil
	m.invalidated++
	return nil
}

// ── 测试数据 ──

func testShiftTypes() []roster.ShiftType {
	return []roster.ShiftType{
		{Code: roster.CodeDay, Hours: 12, StartTime: "06:00", EndTime: "18:00", Color: "#FFF2CC", CheckUnderstaffing: true, SortOrder: 1, Visible: true},
		{Code: roster.CodeNight, Hours: 12, StartTime: "18:00", EndTime: "06:00", Color: "#BDD7EE", CheckUnderstaffing: true, SortOrder: 2, Visible: true},
		{Code: roster.CodeFriday, Hours: 8, StartTime: "06:00", EndTime: "14:00", SortOrder: 3, Visible: true},
		{Code: roster.CodeVacation, SortOrder: 10, Visible: true},
		{Code: roster.CodeX, SortOrder: 11, Visible: true},
		{Code: roster.CodeFree, SortOrder: 12, Visible: true},
	}
}

type testRepos struct {
	repo     *repository.Repository
	source   *mockSnapshotSource
	schedule *mockScheduleRepo
	catalog  *mockCatalogRepo
	config   *mockConfigRepo
}

// setupTestRepos 员工 7、8、9；8 在 3 月 20 日锁定 T.，9 在 3 月 18 日有待审批 WF
// 快照中的排班取自 mockScheduleRepo，生成写入后重新加载可见
func setupTestRepos() *testRepos {
	tr := &testRepos{
		schedule: newMockScheduleRepo(),
		catalog:  &mockCatalogRepo{types: testShiftTypes()},
		config:   newMockConfigRepo(),
	}
	tr.schedule.shifts[7] = map[roster.Date]string{mar(15): roster.CodeDay}
	tr.schedule.shifts[8] = map[roster.Date]string{mar(20): roster.CodeDay}
	tr.source = &mockSnapshotSource{snap: func(year int, month time.Month) *planning.MonthSnapshot {
		return &planning.MonthSnapshot{
			Year:  year,
			Month: month,
			Employees: []roster.Employee{
				{ID: 7, Surname: "Vogt", GivenName: "Eva", SortOrder: 1, Visible: true, Prefs: roster.DefaultPrefs()},
				{ID: 8, Surname: "Wolf", SortOrder: 2, Visible: true, Prefs: roster.DefaultPrefs()},
				{ID: 9, Surname: "Zeller", SortOrder: 3, Visible: true, Prefs: roster.DefaultPrefs()},
			},
			Locks:  []roster.Lock{{UserID: 8, Date: mar(20), Code: roster.CodeDay}},
			Shifts: tr.schedule.rows(),
			Wishes: []roster.WishRequest{
				{ID: 21, UserID: 9, Date: mar(18), RequestedCode: roster.CodeWishFree, Status: roster.WishPending, RequestedBy: roster.RequestedByUser},
			},
		}
	}}
	tr.repo = &repository.Repository{
		Snapshot: tr.source,
		Schedule: tr.schedule,
		Catalog:  tr.catalog,
		Config:   tr.config,
	}
	return tr
}
