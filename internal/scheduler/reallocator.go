package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-allocator/internal/allocator"

	"go.uber.org/zap"
)

// ErrAlreadyRunning Start 被重复调用
var ErrAlreadyRunning = errors.New("reallocator already running")

// Runner 分配器接口
type Runner interface {
	NeedsReallocation(ctx context.Context) (allocator.Trigger, error)
	Run(ctx context.Context) (*allocator.PassResult, error)
}

// Reallocator 周期性重新分配（轮询模式）
// - 启动时立即评估一次，之后按 interval 触发
// - 执行锁保证定时触发和手动触发不会重叠；定时触发遇到正在执行的分配时直接跳过
type Reallocator struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger

	exec sync.Mutex // 执行锁

	mu      sync.Mutex // 保护以下状态
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New 创建周期性重新分配任务
func New(runner Runner, interval time.Duration, logger *zap.Logger) *Reallocator {
	return &Reallocator{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Start 启动轮询，阻塞直到 ctx 取消或调用 Stop
func (r *Reallocator) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("invalid reallocation interval: %s", r.interval)
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.running = true
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		r.running = false
		r.cancel = nil
		r.mu.Unlock()
		close(done)
	}()

	r.logger.Info("Reallocator started",
		zap.Duration("interval", r.interval),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// 立即执行一次
	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reallocator stopped")
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// Stop 停止轮询，返回时轮询协程已退出（可重复调用）
func (r *Reallocator) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	done := r.done
	r.mu.Unlock()

	<-done
}

// RunOnce 立即评估一次；force 为 true 时跳过触发条件直接分配
// 返回 nil 结果表示触发条件不满足，未执行分配
func (r *Reallocator) RunOnce(ctx context.Context, force bool) (*allocator.PassResult, error) {
	r.exec.Lock()
	defer r.exec.Unlock()
	return r.evaluate(ctx, force)
}

// tick 定时触发；已有分配在执行时跳过，返回是否执行了评估
func (r *Reallocator) tick(ctx context.Context) bool {
	if !r.exec.TryLock() {
		r.logger.Debug("Allocation pass in flight, skipping tick")
		return false
	}
	defer r.exec.Unlock()

	if _, err := r.evaluate(ctx, false); err != nil {
		r.logger.Error("Failed to reallocate resources",
			zap.Error(err),
		)
		// 继续执行，不中断
	}
	return true
}

func (r *Reallocator) evaluate(ctx context.Context, force bool) (*allocator.PassResult, error) {
	if !force {
		trig, err := r.runner.NeedsReallocation(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate reallocation trigger: %w", err)
		}
		if !trig.Fire {
			r.logger.Debug("Reallocation not needed",
				zap.Float64("utilization", trig.Utilization),
			)
			return nil, nil
		}
		r.logger.Debug("Reallocation triggered",
			zap.Float64("utilization", trig.Utilization),
			zap.Int("unassigned_critical", trig.UnassignedCritical),
		)
	}

	result, err := r.runner.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run allocation pass: %w", err)
	}
	return result, nil
}
