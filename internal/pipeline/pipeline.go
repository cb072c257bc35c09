package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"dienstplan/internal/planning"
	"dienstplan/internal/roster"
	pkgerrors "dienstplan/pkg/errors"
)

// defaultWriteTimeout 单次后台写库超时
const defaultWriteTimeout = 10 * time.Second

// Model 流水线所需的 PDM 能力（*planning.Manager 实现）
type Model interface {
	ViolationTracker

	SetShift(userID int, d roster.Date, code string) (string, error)
	ForceShift(userID int, d roster.Date, code string) string
	SetLock(userID int, d roster.Date, code string) (planning.CellChange, string, error)
	RemoveLock(userID int, d roster.Date) (string, bool, error)
	RestoreLock(userID int, d roster.Date, code string)
	ApplyWishStatus(id int, status roster.WishStatus, reason *string) (planning.WishTransition, error)
	RestoreWish(w roster.WishRequest)
	Wish(id int) (roster.WishRequest, bool)

	ShiftAt(userID int, d roster.Date) string
	DisplayCode(userID int, d roster.Date) string
	LockCode(userID int, d roster.Date) (string, bool)
	ShiftHoursOn(code string, d roster.Date) float64
	AdjustUserHours(userID int, delta float64) float64
	AllUserHours() map[int]float64
	RecalculateDailyCountsForDay(d roster.Date, oldCode, newCode string)
	DisplayCounts(d roster.Date) map[string]int
	GetMinStaffingForDate(d roster.Date) map[string]int
	Understaffing(d roster.Date) []string
	IsVisible(userID int) bool
	Employees() []roster.Employee
	PlanMonth() (int, time.Month, bool)
	RecomputeAllViolations() []planning.Cell
}

// View 显示层（*view.GridView 实现）
type View interface {
	ConflictPainter

	Reset(year, month int)
	PaintCell(userID int, d roster.Date, text string, locked bool)
	Flush()
	RefreshUserHours(userID int, hours float64)
	RefreshDayCounts(d roster.Date, counts, required map[string]int, understaffed []string)
	RecomputeLayout()
	ShowWarning(msg string)
	ShowError(msg string)
}

// CellWriter 单元格持久化（由 repository 实现）
type CellWriter interface {
	// UpsertShift 写入排班；code 为空表示删除
	UpsertShift(ctx context.Context, userID int, d roster.Date, code string) error
	UpsertLock(ctx context.Context, userID int, d roster.Date, code string) error
	DeleteLock(ctx context.Context, userID int, d roster.Date) error
	SaveWishTransition(ctx context.Context, tr planning.WishTransition) error
}

// Options 流水线参数
type Options struct {
	Debounce     time.Duration
	QueueWarnAt  int
	WriteTimeout time.Duration
}

// Pipeline 单元格编辑的主/次两阶段更新
// 主阶段（缓存 → 重绘 → 入队 → 合并 → 后台写库）在主线程同步完成；
// 冲突重算与次级统计随后异步到达
type Pipeline struct {
	model    Model
	view     View
	writer   CellWriter
	dispatch Dispatcher
	worker   *ConflictWorker
	debounce *Debouncer
	logger   *zap.Logger
	timeout  time.Duration

	wmu       sync.Mutex
	lastWrite chan struct{}
	writes    sync.WaitGroup
}

// New 创建流水线
func New(model Model, v View, writer CellWriter, dispatch Dispatcher, opts Options, logger *zap.Logger) *Pipeline {
	p := &Pipeline{
		model:    model,
		view:     v,
		writer:   writer,
		dispatch: dispatch,
		logger:   logger,
		timeout:  opts.WriteTimeout,
	}
	if p.timeout <= 0 {
		p.timeout = defaultWriteTimeout
	}
	p.worker = NewConflictWorker(model, v, dispatch, opts.QueueWarnAt, logger)
	p.debounce = NewDebouncer(opts.Debounce, dispatch, p.applySecondary)
	return p
}

// ════════════════════════════════════════════════════════════
// 排班编辑
// ════════════════════════════════════════════════════════════

// Edit 修改一个格子；必须在主线程调用
// 锁定格子被拒绝时只给出警告，不入队也不写库
func (p *Pipeline) Edit(userID int, d roster.Date, code string) (planning.CellChange, error) {
	oldText := p.model.DisplayCode(userID, d)
	old, err := p.model.SetShift(userID, d, code)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrCellLocked) {
			p.view.ShowWarning(fmt.Sprintf("%s 已锁定，不可修改", d))
		}
		return planning.CellChange{}, err
	}
	change := planning.CellChange{UserID: userID, Date: d, OldCode: old, NewCode: code}
	p.primary(change, oldText)

	p.persist("排班", change, func(ctx context.Context) error {
		return p.writer.UpsertShift(ctx, userID, d, code)
	}, func() {
		if p.model.ShiftAt(userID, d) != code {
			return
		}
		p.revertShift(change)
	})
	return change, nil
}

// primary 重绘 → 提交 → 冲突入队 → 次级更新排期
func (p *Pipeline) primary(c planning.CellChange, oldText string) {
	// 计划月以外的格子（跨月愿望）不在视图中
	if y, m, ok := p.model.PlanMonth(); !ok || !c.Date.InMonth(y, m) {
		return
	}
	text := p.model.DisplayCode(c.UserID, c.Date)
	_, locked := p.model.LockCode(c.UserID, c.Date)
	p.view.PaintCell(c.UserID, c.Date, text, locked)
	p.view.Flush()

	p.worker.Enqueue(EditItem{UserID: c.UserID, Date: c.Date, OldCode: c.OldCode, NewCode: c.NewCode})
	if c.Changed() {
		layout := utf8.RuneCountInString(oldText) != utf8.RuneCountInString(text)
		p.debounce.Submit(Change{UserID: c.UserID, Date: c.Date, Old: c.OldCode, New: c.NewCode}, layout)
	}
}

// revertShift 补偿：在主线程把格子恢复为旧代码并重走主阶段
func (p *Pipeline) revertShift(c planning.CellChange) {
	oldText := p.model.DisplayCode(c.UserID, c.Date)
	p.model.ForceShift(c.UserID, c.Date, c.OldCode)
	p.primary(planning.CellChange{UserID: c.UserID, Date: c.Date, OldCode: c.NewCode, NewCode: c.OldCode}, oldText)
}

// persist 后台按提交顺序写库；失败时把补偿投递到主线程
func (p *Pipeline) persist(what string, c planning.CellChange, write func(context.Context) error, compensate func()) {
	p.wmu.Lock()
	prev := p.lastWrite
	done := make(chan struct{})
	p.lastWrite = done
	p.writes.Add(1)
	p.wmu.Unlock()

	go func() {
		defer p.writes.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		err := p.safeWrite(write)
		if err == nil {
			return
		}
		p.logger.Error("写库失败，回滚缓存",
			zap.String("kind", what),
			zap.Int("user_id", c.UserID),
			zap.String("date", c.Date.String()),
			zap.String("old_code", c.OldCode),
			zap.String("new_code", c.NewCode),
			zap.Error(err))
		p.dispatch.Post(func() {
			compensate()
			p.view.ShowError(fmt.Sprintf("%s保存失败（%s）：%v", what, c.Date, err))
		})
	}()
}

func (p *Pipeline) safeWrite(write func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("写库异常: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return write(ctx)
}

// ════════════════════════════════════════════════════════════
// 锁定
// ════════════════════════════════════════════════════════════

// SetLock 锁定格子并把锁代码写入排班；必须在主线程调用
func (p *Pipeline) SetLock(userID int, d roster.Date, code string) (planning.CellChange, error) {
	oldText := p.model.DisplayCode(userID, d)
	change, prevLock, err := p.model.SetLock(userID, d, code)
	if err != nil {
		return planning.CellChange{}, err
	}
	p.primary(change, oldText)

	p.persist("锁定", change, func(ctx context.Context) error {
		if err := p.writer.UpsertLock(ctx, userID, d, code); err != nil {
			return err
		}
		return p.writer.UpsertShift(ctx, userID, d, code)
	}, func() {
		if cur, ok := p.model.LockCode(userID, d); !ok || cur != code {
			return
		}
		p.model.RestoreLock(userID, d, prevLock)
		p.revertShift(change)
	})
	return change, nil
}

// RemoveLock 解除锁定，排班不变；必须在主线程调用
func (p *Pipeline) RemoveLock(userID int, d roster.Date) (bool, error) {
	code, ok, err := p.model.RemoveLock(userID, d)
	if err != nil || !ok {
		return false, err
	}
	cur := p.model.ShiftAt(userID, d)
	change := planning.CellChange{UserID: userID, Date: d, OldCode: cur, NewCode: cur}
	p.primary(change, p.model.DisplayCode(userID, d))

	p.persist("解锁", change, func(ctx context.Context) error {
		return p.writer.DeleteLock(ctx, userID, d)
	}, func() {
		if _, locked := p.model.LockCode(userID, d); locked {
			return
		}
		p.model.RestoreLock(userID, d, code)
		p.primary(change, p.model.DisplayCode(userID, d))
	})
	return true, nil
}

// ════════════════════════════════════════════════════════════
// 次级更新与整体重绘
// ════════════════════════════════════════════════════════════

// applySecondary 主线程应用一批次级更新：工时 → 每日统计 → 布局
func (p *Pipeline) applySecondary(b *Batch) {
	for _, uid := range b.SortedUsers() {
		delta := 0.0
		for _, c := range b.Users[uid] {
			delta += p.model.ShiftHoursOn(c.New, c.Date) - p.model.ShiftHoursOn(c.Old, c.Date)
		}
		p.view.RefreshUserHours(uid, p.model.AdjustUserHours(uid, delta))
	}
	for _, d := range b.SortedDays() {
		for _, c := range b.Days[d] {
			if p.model.IsVisible(c.UserID) {
				p.model.RecalculateDailyCountsForDay(d, c.Old, c.New)
			}
		}
		p.refreshDay(d)
	}
	if b.Layout {
		p.view.RecomputeLayout()
	}
}

// refreshDay 刷新某日统计：人数 / 最低要求 / 缺员班次
func (p *Pipeline) refreshDay(d roster.Date) {
	p.view.RefreshDayCounts(d, p.model.DisplayCounts(d), p.model.GetMinStaffingForDate(d), p.model.Understaffing(d))
}

// RepaintAll 加载或生成后整月重绘；必须在主线程调用
func (p *Pipeline) RepaintAll() {
	year, month, ok := p.model.PlanMonth()
	if !ok {
		return
	}
	p.debounce.Discard()
	p.view.Reset(year, int(month))

	dates := roster.MonthDates(year, month)
	for _, e := range p.model.Employees() {
		for _, d := range dates {
			text := p.model.DisplayCode(e.ID, d)
			_, locked := p.model.LockCode(e.ID, d)
			if text != "" || locked {
				p.view.PaintCell(e.ID, d, text, locked)
			}
		}
	}
	for uid, h := range p.model.AllUserHours() {
		p.view.RefreshUserHours(uid, h)
	}
	for _, d := range dates {
		p.refreshDay(d)
	}
	violations := p.model.RecomputeAllViolations()
	marks := make(map[planning.Cell]bool, len(violations))
	for _, c := range violations {
		marks[c] = true
	}
	p.view.PaintConflicts(marks)
	p.view.Flush()
	p.view.RecomputeLayout()
}

// Settle 等待所有后台写库、次级更新与冲突重算落定；不可在主线程调用
func (p *Pipeline) Settle(ctx context.Context) error {
	// ── 阶段1: 写库（及其补偿） ──
	idle := make(chan struct{})
	go func() {
		p.writes.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := p.dispatch.Barrier(ctx); err != nil {
		return err
	}

	// ── 阶段2: 次级更新与冲突 ──
	p.debounce.Flush()
	if err := p.debounce.Wait(ctx); err != nil {
		return err
	}
	if err := p.worker.Wait(ctx); err != nil {
		return err
	}
	return p.dispatch.Barrier(ctx)
}
