package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"dienstplan/internal/planning"
	"dienstplan/internal/roster"
)

// EditItem 一次单元格编辑
type EditItem struct {
	UserID  int
	Date    roster.Date
	OldCode string
	NewCode string
}

// ViolationTracker 冲突重算所需的 PDM 能力
type ViolationTracker interface {
	UpdateViolationsIncrementally(userID int, d roster.Date, oldCode, newCode string) []planning.Cell
	IsViolation(c planning.Cell) bool
}

// ConflictPainter 冲突标记绘制
type ConflictPainter interface {
	PaintConflicts(marks map[planning.Cell]bool)
}

// ConflictWorker 单消费者：批量取出编辑，增量重算违规，再派发到主线程绘制
// 异常退出后由下一次 Enqueue 重启
type ConflictWorker struct {
	tracker  ViolationTracker
	painter  ConflictPainter
	dispatch Dispatcher
	logger   *zap.Logger
	warnAt   int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []EditItem
	pending int
	alive   bool
	signal  chan struct{}
	// restarts 异常后的重启次数
	restarts int
}

// NewConflictWorker 创建 worker；warnAt 为队列积压告警阈值
func NewConflictWorker(tracker ViolationTracker, painter ConflictPainter, dispatch Dispatcher, warnAt int, logger *zap.Logger) *ConflictWorker {
	w := &ConflictWorker{
		tracker:  tracker,
		painter:  painter,
		dispatch: dispatch,
		logger:   logger,
		warnAt:   warnAt,
		signal:   make(chan struct{}, 1),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Enqueue 多生产者入队，立即返回
func (w *ConflictWorker) Enqueue(item EditItem) {
	w.mu.Lock()
	w.queue = append(w.queue, item)
	w.pending++
	if w.warnAt > 0 && len(w.queue) == w.warnAt {
		w.logger.Warn("冲突队列积压", zap.Int("size", len(w.queue)))
	}
	if !w.alive {
		if w.restarts > 0 || w.pending > 1 {
			w.logger.Info("冲突 worker 重启", zap.Int("restarts", w.restarts))
		}
		w.alive = true
		go w.loop()
	}
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *ConflictWorker) loop() {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("冲突 worker 异常退出", zap.Any("panic", r))
		}
		w.mu.Lock()
		w.alive = false
		w.restarts++
		w.mu.Unlock()
	}()
	for range w.signal {
		batch := w.drain()
		if len(batch) > 0 {
			w.process(batch)
		}
	}
}

func (w *ConflictWorker) drain() []EditItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch := w.queue
	w.queue = nil
	return batch
}

// process 逐项重算并合并受影响的单元格；单项异常只跳过该项
func (w *ConflictWorker) process(batch []EditItem) {
	defer w.done(len(batch))

	affected := make(map[planning.Cell]struct{})
	for _, item := range batch {
		for _, c := range w.recompute(item) {
			affected[c] = struct{}{}
		}
	}
	if len(affected) == 0 {
		return
	}
	marks := make(map[planning.Cell]bool, len(affected))
	for c := range affected {
		marks[c] = w.tracker.IsViolation(c)
	}
	w.dispatch.Post(func() { w.painter.PaintConflicts(marks) })
}

func (w *ConflictWorker) recompute(item EditItem) (cells []planning.Cell) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("违规重算失败",
				zap.Int("user_id", item.UserID),
				zap.String("date", item.Date.String()),
				zap.Any("panic", r))
			cells = nil
		}
	}()
	return w.tracker.UpdateViolationsIncrementally(item.UserID, item.Date, item.OldCode, item.NewCode)
}

func (w *ConflictWorker) done(n int) {
	w.mu.Lock()
	w.pending -= n
	if w.pending <= 0 {
		w.pending = 0
		w.cond.Broadcast()
	}
	w.mu.Unlock()
}

// Wait 等待队列清空并且已处理的批次都已投递绘制任务
func (w *ConflictWorker) Wait(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		w.mu.Lock()
		for w.pending > 0 {
			w.cond.Wait()
		}
		w.mu.Unlock()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending 尚未处理的编辑数
func (w *ConflictWorker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}
