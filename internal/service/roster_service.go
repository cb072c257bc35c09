package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dienstplan/internal/generator"
	"dienstplan/internal/pipeline"
	"dienstplan/internal/planning"
	"dienstplan/internal/repository"
	"dienstplan/internal/roster"
	"dienstplan/internal/view"
	pkgerrors "dienstplan/pkg/errors"
)

// ── 排班模块业务错误 ──

var (
	ErrInvalidMonth       = errors.New("年月无效")
	ErrGenerationRunning  = errors.New("该月排班生成正在进行")
	ErrJobNotFound        = errors.New("生成任务不存在")
	ErrWishNotFound       = errors.New("愿望申请不存在")
	ErrEmployeeNotInMonth = errors.New("员工或日期不在当前计划月内")
)

// 生成任务状态
const (
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// GenerationJob 一次后台生成
type GenerationJob struct {
	ID         string                `json:"id"`
	Year       int                   `json:"year"`
	Month      int                   `json:"month"`
	Status     string                `json:"status"`
	Progress   int                   `json:"progress"`
	Message    string                `json:"message,omitempty"`
	Rows       int64                 `json:"rows"`
	Assigned   int                   `json:"assigned"`
	Shortfalls []generator.Shortfall `json:"shortfalls,omitempty"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
}

// RosterView 排班表显示快照 + 自上次读取以来的提示
type RosterView struct {
	Grid      view.Grid         `json:"grid"`
	Employees []EmployeeSummary `json:"employees"`
	Notices   []view.Notice     `json:"notices,omitempty"`
	Conflicts int               `json:"conflicts"`
}

// EmployeeSummary 行头信息
type EmployeeSummary struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Visible    bool   `json:"visible"`
	ServiceDog string `json:"service_dog,omitempty"`
}

// RosterService 计划月加载、编辑与生成
type RosterService interface {
	// LoadMonth 加载计划月；新的加载会取消仍在进行的旧加载
	LoadMonth(ctx context.Context, year int, month time.Month) (*RosterView, error)
	// View 当前月份的显示快照；月份不同则先加载
	View(ctx context.Context, year int, month time.Month) (*RosterView, error)

	EditCell(ctx context.Context, userID int, d roster.Date, code string) (planning.CellChange, error)
	SetLock(ctx context.Context, userID int, d roster.Date, code string) (planning.CellChange, error)
	RemoveLock(ctx context.Context, userID int, d roster.Date) (bool, error)

	AcceptWish(ctx context.Context, id int) (planning.WishTransition, error)
	RejectWish(ctx context.Context, id int, reason string) (planning.WishTransition, error)
	WithdrawWish(ctx context.Context, id int) (planning.WishTransition, error)

	// StartGeneration 启动后台生成；生成期间该月的编辑、锁定与愿望处理返回 ErrGenerationRunning
	StartGeneration(ctx context.Context, year int, month time.Month) (*GenerationJob, error)
	Job(id string) (*GenerationJob, error)

	// RefreshConfig 重新读取目录与配置，已加载的计划月按新配置重算违规并整月重绘
	RefreshConfig(ctx context.Context) error

	// Settle 等待后台写库、次级更新与冲突重算落定
	Settle(ctx context.Context) error
	Manager() *planning.Manager
	Close()
}

// RosterOptions 进程级参数
type RosterOptions struct {
	Pipeline pipeline.Options
	JobTTL   time.Duration
}

type rosterService struct {
	catalog CatalogService
	config  ConfigService
	logger  *zap.Logger

	manager *planning.Manager
	grid    *view.GridView
	main    pipeline.MainThread
	pipe    *pipeline.Pipeline
	orch    *generator.Orchestrator

	// 加载互斥：新加载取消旧加载
	lmu        sync.Mutex
	loadSeq    uint64
	cancelLoad context.CancelFunc

	jmu    sync.Mutex
	jobs   map[string]*GenerationJob
	jobTTL time.Duration
	// generating 正在生成的月份（"2025-03"），在主线程上登记
	generating map[string]bool

	baseCtx context.Context
	stop    context.CancelFunc
}

// NewRosterService 创建 RosterService；main 为主线程派发器
func NewRosterService(
	repo *repository.Repository,
	catalog CatalogService,
	config ConfigService,
	main pipeline.MainThread,
	opts RosterOptions,
	logger *zap.Logger,
) RosterService {
	manager := planning.NewManager(repo.Snapshot, nil, nil, roster.DefaultGeneratorConfig(), logger)
	grid := view.NewGridView()
	if opts.JobTTL <= 0 {
		opts.JobTTL = time.Hour
	}
	baseCtx, stop := context.WithCancel(context.Background())
	return &rosterService{
		catalog: catalog,
		config:  config,
		logger:  logger,
		manager: manager,
		grid:    grid,
		main:    main,
		pipe:    pipeline.New(manager, grid, repo.Schedule, main, opts.Pipeline, logger),
		orch:    generator.NewOrchestrator(repo.Schedule, logger),
		jobs:    make(map[string]*GenerationJob),
		jobTTL:  opts.JobTTL,
		baseCtx: baseCtx,
		stop:    stop,

		generating: make(map[string]bool),
	}
}

func validMonth(year int, month time.Month) error {
	if year < 1900 || year > 9999 || month < time.January || month > time.December {
		return fmt.Errorf("%w: %d-%d", ErrInvalidMonth, year, int(month))
	}
	return nil
}

// ═══════════════════════════════════════════════════════════
// LoadMonth 加载计划月
// ═══════════════════════════════════════════════════════════

func (s *rosterService) LoadMonth(ctx context.Context, year int, month time.Month) (*RosterView, error) {
	if err := validMonth(year, month); err != nil {
		return nil, err
	}

	// ── 阶段1: 取消旧加载 ──
	s.lmu.Lock()
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	lctx, cancel := context.WithCancel(ctx)
	s.loadSeq++
	seq := s.loadSeq
	s.cancelLoad = cancel
	s.lmu.Unlock()
	defer func() {
		s.lmu.Lock()
		if s.loadSeq == seq {
			s.cancelLoad = nil
		}
		s.lmu.Unlock()
		cancel()
	}()

	// ── 阶段2: 并行读取目录与配置 ──
	in, err := s.readInputs(lctx)
	if err != nil {
		if lctx.Err() != nil {
			return nil, pkgerrors.ErrLoadCancelled
		}
		return nil, err
	}

	// ── 阶段3: 旧月份的编辑落定后再替换缓存 ──
	if err := s.pipe.Settle(lctx); err != nil {
		return nil, pkgerrors.ErrLoadCancelled
	}
	s.applyInputs(in)

	progress := func(p int, msg string) {
		s.logger.Debug("月度加载进度", zap.Int("percent", p), zap.String("message", msg))
	}
	if err := s.manager.Load(lctx, year, month, progress); err != nil {
		return nil, err
	}

	// ── 阶段4: 被更新的加载取代时不重绘 ──
	s.lmu.Lock()
	superseded := s.loadSeq != seq
	s.lmu.Unlock()
	if superseded {
		return nil, pkgerrors.ErrLoadCancelled
	}
	if err := s.main.Do(ctx, s.pipe.RepaintAll); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

// monthInputs 计划月之外的运行期输入
type monthInputs struct {
	catalog  *roster.ShiftCatalog
	staffing *roster.StaffingRules
	genCfg   roster.GeneratorConfig
}

// readInputs 并行读取目录、人员配置规则与生成器配置
func (s *rosterService) readInputs(ctx context.Context) (monthInputs, error) {
	var in monthInputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.catalog, err = s.catalog.Catalog(gctx)
		return err
	})
	g.Go(func() (err error) {
		in.staffing, err = s.config.StaffingRules(gctx)
		return err
	})
	g.Go(func() (err error) {
		in.genCfg, err = s.config.GeneratorConfig(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return monthInputs{}, err
	}
	return in, nil
}

func (s *rosterService) applyInputs(in monthInputs) {
	s.manager.SetCatalog(in.catalog)
	s.manager.SetStaffingRules(in.staffing)
	s.manager.SetGeneratorConfig(in.genCfg)
}

func (s *rosterService) RefreshConfig(ctx context.Context) error {
	if !s.manager.Loaded() {
		return nil
	}
	in, err := s.readInputs(ctx)
	if err != nil {
		return err
	}
	if err := s.main.Do(ctx, func() {
		s.applyInputs(in)
		s.pipe.RepaintAll()
	}); err != nil {
		return err
	}
	s.logger.Info("计划月已按新配置重算")
	return nil
}

func (s *rosterService) View(ctx context.Context, year int, month time.Month) (*RosterView, error) {
	if err := validMonth(year, month); err != nil {
		return nil, err
	}
	if y, m, ok := s.manager.PlanMonth(); !ok || y != year || m != month {
		return s.LoadMonth(ctx, year, month)
	}
	if err := s.Settle(ctx); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

func (s *rosterService) snapshot() *RosterView {
	employees := s.manager.Employees()
	order := make([]int, 0, len(employees))
	summaries := make([]EmployeeSummary, 0, len(employees))
	for _, e := range employees {
		order = append(order, e.ID)
		summaries = append(summaries, EmployeeSummary{
			ID: e.ID, Name: e.DisplayName(), Visible: e.Visible, ServiceDog: e.ServiceDog,
		})
	}
	return &RosterView{
		Grid:      s.grid.Snapshot(order),
		Employees: summaries,
		Notices:   s.grid.DrainNotices(),
		Conflicts: len(s.manager.Violations()),
	}
}

// ═══════════════════════════════════════════════════════════
// 编辑（全部在主线程执行）
// ═══════════════════════════════════════════════════════════

func (s *rosterService) checkCode(code string) error {
	if code == "" {
		return nil
	}
	cat := s.manager.Catalog()
	if cat == nil {
		return pkgerrors.ErrMonthNotLoaded
	}
	if _, ok := cat.Get(code); !ok {
		return fmt.Errorf("%w: %q", roster.ErrUnknownShift, code)
	}
	return nil
}

// onMain 在主线程执行编辑；计划月正在生成时拒绝
func (s *rosterService) onMain(ctx context.Context, fn func() error) error {
	if !s.manager.Loaded() {
		return pkgerrors.ErrMonthNotLoaded
	}
	var err error
	if doErr := s.main.Do(ctx, func() {
		if y, m, ok := s.manager.PlanMonth(); ok && s.isGenerating(y, m) {
			err = ErrGenerationRunning
			return
		}
		err = fn()
	}); doErr != nil {
		return doErr
	}
	return err
}

func genKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

func (s *rosterService) isGenerating(year int, month time.Month) bool {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	return s.generating[genKey(year, month)]
}

// claimGeneration 登记生成中的月份；已登记时返回 false
func (s *rosterService) claimGeneration(year int, month time.Month) bool {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	key := genKey(year, month)
	if s.generating[key] {
		return false
	}
	s.generating[key] = true
	return true
}

func (s *rosterService) releaseGeneration(year int, month time.Month) {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	delete(s.generating, genKey(year, month))
}

func mapEditError(err error) error {
	switch {
	case errors.Is(err, planning.ErrUnknownEmployee), errors.Is(err, planning.ErrDateOutOfMonth):
		return fmt.Errorf("%w: %w", ErrEmployeeNotInMonth, err)
	case errors.Is(err, planning.ErrWishNotFound):
		return ErrWishNotFound
	}
	return err
}

func (s *rosterService) EditCell(ctx context.Context, userID int, d roster.Date, code string) (planning.CellChange, error) {
	if err := s.checkCode(code); err != nil {
		return planning.CellChange{}, err
	}
	var change planning.CellChange
	err := s.onMain(ctx, func() (err error) {
		change, err = s.pipe.Edit(userID, d, code)
		return err
	})
	return change, mapEditError(err)
}

func (s *rosterService) SetLock(ctx context.Context, userID int, d roster.Date, code string) (planning.CellChange, error) {
	if code == "" {
		return planning.CellChange{}, fmt.Errorf("%w: 锁定代码不能为空", roster.ErrUnknownShift)
	}
	if err := s.checkCode(code); err != nil {
		return planning.CellChange{}, err
	}
	var change planning.CellChange
	err := s.onMain(ctx, func() (err error) {
		change, err = s.pipe.SetLock(userID, d, code)
		return err
	})
	return change, mapEditError(err)
}

func (s *rosterService) RemoveLock(ctx context.Context, userID int, d roster.Date) (bool, error) {
	var removed bool
	err := s.onMain(ctx, func() (err error) {
		removed, err = s.pipe.RemoveLock(userID, d)
		return err
	})
	return removed, mapEditError(err)
}

func (s *rosterService) wishEdit(ctx context.Context, fn func() (planning.WishTransition, error)) (planning.WishTransition, error) {
	var tr planning.WishTransition
	err := s.onMain(ctx, func() (err error) {
		tr, err = fn()
		return err
	})
	return tr, mapEditError(err)
}

func (s *rosterService) AcceptWish(ctx context.Context, id int) (planning.WishTransition, error) {
	return s.wishEdit(ctx, func() (planning.WishTransition, error) { return s.pipe.AcceptWish(id) })
}

func (s *rosterService) RejectWish(ctx context.Context, id int, reason string) (planning.WishTransition, error) {
	return s.wishEdit(ctx, func() (planning.WishTransition, error) { return s.pipe.RejectWish(id, reason) })
}

func (s *rosterService) WithdrawWish(ctx context.Context, id int) (planning.WishTransition, error) {
	return s.wishEdit(ctx, func() (planning.WishTransition, error) { return s.pipe.WithdrawWish(id) })
}

// ═══════════════════════════════════════════════════════════
// 生成
// ═══════════════════════════════════════════════════════════

func (s *rosterService) StartGeneration(ctx context.Context, year int, month time.Month) (*GenerationJob, error) {
	if err := validMonth(year, month); err != nil {
		return nil, err
	}
	if s.orch.Running(year, month) {
		return nil, ErrGenerationRunning
	}
	// ── 阶段1: 确保计划月已加载，并读取最新的目录与配置 ──
	if y, m, ok := s.manager.PlanMonth(); !ok || y != year || m != month {
		if _, err := s.LoadMonth(ctx, year, month); err != nil {
			return nil, err
		}
	}
	inputs, err := s.readInputs(ctx)
	if err != nil {
		return nil, err
	}

	// ── 阶段2: 主线程上登记生成并换入配置，此后的编辑一律拒绝 ──
	claimed, err := s.claimOnMain(ctx, year, month, inputs)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if !s.isGenerating(year, month) {
			// 期间被其他月份的加载取代
			return nil, pkgerrors.ErrLoadCancelled
		}
		return nil, ErrGenerationRunning
	}

	// ── 阶段3: 登记之前的编辑落库后取快照 ──
	state, err := s.snapshotForGeneration(ctx)
	if err != nil {
		s.releaseGeneration(year, month)
		return nil, err
	}

	// ── 阶段4: 登记任务并后台执行 ──
	s.pruneJobs()
	job := &GenerationJob{
		ID:        uuid.NewString(),
		Year:      year,
		Month:     int(month),
		Status:    JobRunning,
		StartedAt: time.Now(),
	}
	s.jmu.Lock()
	s.jobs[job.ID] = job
	s.jmu.Unlock()

	in := generator.Input{
		State:    state,
		Catalog:  inputs.catalog,
		Staffing: inputs.staffing,
		Config:   inputs.genCfg.Normalize(),
		Progress: func(p int, msg string) { s.updateJob(job.ID, func(j *GenerationJob) { j.Progress, j.Message = p, msg }) },
	}
	err = s.orch.Start(s.baseCtx, in, func(success bool, rows int64, errMsg string, result *generator.Result) {
		s.finishGeneration(job.ID, year, month, success, rows, errMsg, result)
	})
	if err != nil {
		s.jmu.Lock()
		delete(s.jobs, job.ID)
		s.jmu.Unlock()
		s.releaseGeneration(year, month)
		if errors.Is(err, generator.ErrAlreadyRunning) {
			return nil, ErrGenerationRunning
		}
		return nil, err
	}
	s.logger.Info("排班生成已启动", zap.String("job_id", job.ID), zap.Int("year", year), zap.Int("month", int(month)))
	return s.Job(job.ID)
}

// claimOnMain 在主线程登记生成；ctx 先结束时不再登记，已登记的会被撤销
func (s *rosterService) claimOnMain(ctx context.Context, year int, month time.Month, in monthInputs) (bool, error) {
	var (
		mu        sync.Mutex
		claimed   bool
		abandoned bool
	)
	err := s.main.Do(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if abandoned {
			return
		}
		if y, m, ok := s.manager.PlanMonth(); !ok || y != year || m != month {
			return
		}
		if claimed = s.claimGeneration(year, month); claimed {
			s.applyInputs(in)
			s.pipe.RepaintAll()
		}
	})
	mu.Lock()
	abandoned = true
	got := claimed
	mu.Unlock()
	if err != nil {
		if got {
			s.releaseGeneration(year, month)
		}
		return false, err
	}
	return got, nil
}

func (s *rosterService) snapshotForGeneration(ctx context.Context) (*planning.PlanState, error) {
	if err := s.Settle(ctx); err != nil {
		return nil, err
	}
	return s.manager.Snapshot()
}

// finishGeneration 成功后重新加载该月并整月重绘，随后重新开放编辑
func (s *rosterService) finishGeneration(id string, year int, month time.Month, success bool, rows int64, errMsg string, result *generator.Result) {
	if success {
		s.manager.InvalidateMonthCache(year, month)
		if _, err := s.LoadMonth(s.baseCtx, year, month); err != nil {
			s.logger.Error("生成后重新加载失败", zap.String("job_id", id), zap.Error(err))
			success, errMsg = false, fmt.Sprintf("生成已写入，但重新加载失败: %v", err)
		}
	}
	s.releaseGeneration(year, month)

	s.updateJob(id, func(j *GenerationJob) {
		now := time.Now()
		j.FinishedAt = &now
		j.Rows = rows
		if result != nil {
			j.Assigned = result.Assigned
			j.Shortfalls = result.Shortfalls
		}
		if success {
			j.Status, j.Progress = JobSucceeded, 100
			return
		}
		j.Status, j.Error = JobFailed, errMsg
	})
	if !success {
		s.logger.Warn("排班生成失败", zap.String("job_id", id), zap.String("error", errMsg))
	}
}

func (s *rosterService) updateJob(id string, fn func(*GenerationJob)) {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	if j, ok := s.jobs[id]; ok {
		fn(j)
	}
}

func (s *rosterService) Job(id string) (*GenerationJob, error) {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	cp.Shortfalls = append([]generator.Shortfall(nil), j.Shortfalls...)
	return &cp, nil
}

// pruneJobs 清理超过保留时长的已结束任务
func (s *rosterService) pruneJobs() {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	cutoff := time.Now().Add(-s.jobTTL)
	for id, j := range s.jobs {
		if j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}

func (s *rosterService) Settle(ctx context.Context) error {
	return s.pipe.Settle(ctx)
}

func (s *rosterService) Manager() *planning.Manager {
	return s.manager
}

// Close 停止后台任务上下文；调用方负责关闭派发器
func (s *rosterService) Close() {
	s.stop()
	s.lmu.Lock()
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	s.lmu.Unlock()
}
