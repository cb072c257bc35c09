package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher 主线程派发：所有对 PDM 缓存与视图的写入都经由它串行执行
type Dispatcher interface {
	// Post 异步投递任务，不阻塞调用方
	Post(fn func())
	// Barrier 等待此前投递的任务全部执行完毕；不可在主线程内调用
	Barrier(ctx context.Context) error
}

// MainThread 可在主线程同步执行任务的派发器
type MainThread interface {
	Dispatcher
	// Do 在主线程执行 fn 并等待其返回；不可在主线程内调用
	Do(ctx context.Context, fn func()) error
}

// LoopDispatcher 单个 owner goroutine 按 FIFO 执行任务
type LoopDispatcher struct {
	logger *zap.Logger

	mu     sync.Mutex
	tasks  []func()
	signal chan struct{}
	quit   chan struct{}
	once   sync.Once
}

// NewLoopDispatcher 创建并启动事件循环
func NewLoopDispatcher(logger *zap.Logger) *LoopDispatcher {
	d := &LoopDispatcher{
		logger: logger,
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *LoopDispatcher) loop() {
	for {
		select {
		case <-d.quit:
			return
		case <-d.signal:
		}
		for {
			d.mu.Lock()
			if len(d.tasks) == 0 {
				d.mu.Unlock()
				break
			}
			fn := d.tasks[0]
			d.tasks[0] = nil
			d.tasks = d.tasks[1:]
			d.mu.Unlock()
			d.run(fn)
		}
	}
}

// run 单个任务的异常不影响事件循环
func (d *LoopDispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("主线程任务异常", zap.Any("panic", r))
		}
	}()
	fn()
}

// Post 投递任务；队列无上限，主线程内再次投递不会死锁
func (d *LoopDispatcher) Post(fn func()) {
	d.mu.Lock()
	d.tasks = append(d.tasks, fn)
	d.mu.Unlock()
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Do 在主线程执行 fn 并等待其返回
func (d *LoopDispatcher) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	d.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.quit:
		return context.Canceled
	}
}

// Barrier 投递一个空任务并等待
func (d *LoopDispatcher) Barrier(ctx context.Context) error {
	return d.Do(ctx, func() {})
}

// Close 停止事件循环，未执行的任务被丢弃
func (d *LoopDispatcher) Close() {
	d.once.Do(func() { close(d.quit) })
}

// InlineDispatcher 在调用方 goroutine 上立即执行，用于测试
type InlineDispatcher struct {
	mu sync.Mutex
}

// Post 立即执行；串行化以模拟单一主线程
func (d *InlineDispatcher) Post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

// Barrier 等待正在执行的任务结束
func (d *InlineDispatcher) Barrier(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ctx.Err()
}

// Do 立即执行 fn
func (d *InlineDispatcher) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.Post(fn)
	return nil
}
