package schedule

// 升级调度器：替代外部 cron，按固定间隔触发一轮升级扫描
// 跨进程互斥由 engine 的 redis 锁负责，这里只防止同进程内重叠

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"CareLink/internal/escalation"
)

// Runner 由 escalation.Engine 实现
type Runner interface {
	Run(ctx context.Context) (escalation.RunResult, error)
}

type EscalationScheduler struct {
	runner     Runner
	interval   time.Duration
	runTimeout time.Duration
	logger     *zap.Logger

	jobMu      sync.Mutex
	jobRunning bool
	lastRunAt  time.Time
}

func NewEscalationScheduler(runner Runner, interval, runTimeout time.Duration, log *zap.Logger) *EscalationScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &EscalationScheduler{
		runner:     runner,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     log,
	}
}

// RunOnce 执行一轮扫描；本进程已有一轮在跑时直接跳过
func (s *EscalationScheduler) RunOnce(ctx context.Context) error {
	s.jobMu.Lock()
	if s.jobRunning {
		s.jobMu.Unlock()
		s.logger.Info("Escalation job already running, skipping")
		return nil
	}
	s.jobRunning = true
	s.lastRunAt = time.Now()
	s.jobMu.Unlock()

	defer func() {
		s.jobMu.Lock()
		s.jobRunning = false
		s.jobMu.Unlock()
	}()

	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	result, err := s.runner.Run(runCtx)
	if err != nil {
		if errors.Is(err, escalation.ErrRunInProgress) {
			s.logger.Info("Escalation run held by another instance, skipping")
			return nil
		}
		return err
	}

	if result.Due > 0 {
		s.logger.Info("Scheduled escalation run completed",
			zap.Int("due", result.Due),
			zap.Int("advanced", result.Advanced),
			zap.Int("stale", result.Stale),
			zap.Int("errored", result.Errored),
		)
	}
	return nil
}

// Loop 阻塞直到 ctx 取消
func (s *EscalationScheduler) Loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Escalation scheduler started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Escalation scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Escalation scheduler run failed", zap.Error(err))
			}
		}
	}
}

// LastRunAt 最近一次开始执行的时间
func (s *EscalationScheduler) LastRunAt() time.Time {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	return s.lastRunAt
}
