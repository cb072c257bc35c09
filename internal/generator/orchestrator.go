package generator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"dienstplan/internal/planning"
)

// ScheduleWriter 批量写入排班（由 repository 实现）
type ScheduleWriter interface {
	// BatchUpsert 单条多行 upsert，(user_id, shift_date) 冲突时更新代码；返回影响行数
	BatchUpsert(ctx context.Context, year int, month time.Month, rows []planning.ShiftRow) (int64, error)
}

// DoneFunc 生成完成回调
type DoneFunc func(success bool, rows int64, errMsg string, result *Result)

// Orchestrator 驱动生成并一次性持久化
type Orchestrator struct {
	writer ScheduleWriter
	logger *zap.Logger

	mu      sync.Mutex
	running map[string]bool
}

// NewOrchestrator 创建编排器
func NewOrchestrator(writer ScheduleWriter, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		writer:  writer,
		logger:  logger,
		running: make(map[string]bool),
	}
}

func monthKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

// Run 同步执行：生成 → 批量写入
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Result, int64, error) {
	// ── 阶段1: 生成 ──
	started := time.Now()
	result, err := Generate(in)
	if err != nil {
		o.logger.Error("排班生成失败", zap.Error(err))
		return nil, 0, err
	}
	o.logger.Info("排班生成完成",
		zap.Int("year", result.Year),
		zap.Int("month", int(result.Month)),
		zap.Int("assigned", result.Assigned),
		zap.Int("round1", result.ByRound[1]),
		zap.Int("fill_rounds", result.ByRound[2]+result.ByRound[3]+result.ByRound[4]),
		zap.Int("shortfalls", len(result.Shortfalls)),
		zap.Duration("elapsed", time.Since(started)),
	)

	// ── 阶段2: 批量写入（仅计划月） ──
	rows, err := o.writer.BatchUpsert(ctx, result.Year, result.Month, result.Rows())
	if err != nil {
		o.logger.Error("排班批量写入失败", zap.Error(err))
		return result, 0, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	return result, rows, nil
}

// Start 后台执行生成；同一月份同时只允许一个任务。完成后调用 done
func (o *Orchestrator) Start(ctx context.Context, in Input, done DoneFunc) error {
	if in.State == nil {
		return ErrNilState
	}
	key := monthKey(in.State.Year, in.State.Month)
	o.mu.Lock()
	if o.running[key] {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running[key] = true
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.running, key)
			o.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("排班生成异常退出", zap.String("month", key), zap.Any("panic", r))
				if done != nil {
					done(false, 0, fmt.Sprintf("排班生成异常: %v", r), nil)
				}
			}
		}()

		result, rows, err := o.Run(ctx, in)
		if done == nil {
			return
		}
		if err != nil {
			done(false, rows, err.Error(), result)
			return
		}
		done(true, rows, "", result)
	}()
	return nil
}

// Running 该月是否有进行中的生成
func (o *Orchestrator) Running(year int, month time.Month) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running[monthKey(year, month)]
}

func sortRows(rows []planning.ShiftRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].UserID != rows[j].UserID {
			return rows[i].UserID < rows[j].UserID
		}
		return rows[i].Date.Before(rows[j].Date)
	})
}
