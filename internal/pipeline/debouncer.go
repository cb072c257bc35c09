package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"dienstplan/internal/roster"
)

// DefaultDebounce 次级更新的合并窗口
const DefaultDebounce = 100 * time.Millisecond

// Change 一次代码变化
type Change struct {
	UserID int
	Date   roster.Date
	Old    string
	New    string
}

// Batch 窗口内累积的次级更新
type Batch struct {
	Users  map[int][]Change
	Days   map[roster.Date][]Change
	Layout bool
}

func newBatch() *Batch {
	return &Batch{
		Users: make(map[int][]Change),
		Days:  make(map[roster.Date][]Change),
	}
}

// Empty 是否无待处理内容
func (b *Batch) Empty() bool {
	return b == nil || (len(b.Users) == 0 && len(b.Days) == 0 && !b.Layout)
}

// SortedUsers 员工 ID 升序
func (b *Batch) SortedUsers() []int {
	out := make([]int, 0, len(b.Users))
	for uid := range b.Users {
		out = append(out, uid)
	}
	sort.Ints(out)
	return out
}

// SortedDays 日期升序
func (b *Batch) SortedDays() []roster.Date {
	out := make([]roster.Date, 0, len(b.Days))
	for d := range b.Days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Debouncer 合并窗口内的次级更新，到期后在主线程一次性应用
// 每次 Submit 重置计时
type Debouncer struct {
	window   time.Duration
	dispatch Dispatcher
	apply    func(*Batch)

	mu    sync.Mutex
	cond  *sync.Cond
	batch *Batch
	timer *time.Timer
	// inflight 已投递但尚未应用的批次数
	inflight int
}

// NewDebouncer 创建合并器；apply 在主线程执行
func NewDebouncer(window time.Duration, dispatch Dispatcher, apply func(*Batch)) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	d := &Debouncer{window: window, dispatch: dispatch, apply: apply}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Submit 记录一次变化；layout 表示显示宽度可能改变
func (d *Debouncer) Submit(c Change, layout bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.batch == nil {
		d.batch = newBatch()
	}
	d.batch.Users[c.UserID] = append(d.batch.Users[c.UserID], c)
	d.batch.Days[c.Date] = append(d.batch.Days[c.Date], c)
	d.batch.Layout = d.batch.Layout || layout

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

// RequestLayout 只请求重算布局
func (d *Debouncer) RequestLayout() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.batch == nil {
		d.batch = newBatch()
	}
	d.batch.Layout = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

// take 取出当前批次；dispatching 为真时计入 inflight
func (d *Debouncer) take(dispatching bool) *Batch {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	b := d.batch
	d.batch = nil
	if dispatching && !b.Empty() {
		d.inflight++
	}
	return b
}

func (d *Debouncer) fire() {
	b := d.take(true)
	if b.Empty() {
		return
	}
	d.dispatch.Post(func() {
		defer d.applied()
		d.apply(b)
	})
}

func (d *Debouncer) applied() {
	d.mu.Lock()
	d.inflight--
	if d.inflight <= 0 {
		d.inflight = 0
		d.cond.Broadcast()
	}
	d.mu.Unlock()
}

// Wait 等待已投递的批次全部应用完毕
func (d *Debouncer) Wait(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		d.mu.Lock()
		for d.inflight > 0 {
			d.cond.Wait()
		}
		d.mu.Unlock()
		close(idle)
	}()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush 立即投递未到期的批次；不可在主线程内调用
func (d *Debouncer) Flush() {
	d.fire()
}

// Discard 丢弃未应用的批次（切换月份时）
func (d *Debouncer) Discard() {
	d.take(false)
}
