package events

import (
	"context"
	"sync"
	"time"

	"wisefido-allocator/internal/models"

	"go.uber.org/zap"
)

// Event 分发给下游的事件（三者只有一个非空）
type Event struct {
	Assignment   *models.AssignmentEvent
	Notification *models.Notification
	Board        *models.Board
}

// Kind 事件类型名称（日志和指标用）
func (e Event) Kind() string {
	switch {
	case e.Assignment != nil:
		return "assignment"
	case e.Notification != nil:
		return "notification"
	case e.Board != nil:
		return "board"
	}
	return "empty"
}

// Sink 事件下游（PostgreSQL 审计、Redis、MQTT、后端回写）
// Handle 允许阻塞 I/O，只在分发协程内调用
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// SinkFunc 用函数实现 Sink
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, ev Event) error
}

func (s SinkFunc) Name() string { return s.SinkName }

func (s SinkFunc) Handle(ctx context.Context, ev Event) error { return s.Fn(ctx, ev) }

// Observer 分发指标回调
type Observer interface {
	EventDropped(kind string)
	SinkFailed(sink string)
}

// DefaultHandleTimeout 单个 sink 处理单个事件的超时
const DefaultHandleTimeout = 5 * time.Second

// Dispatcher 有界队列 + 单个分发协程
// - Emit 从不阻塞：队列满时丢弃并记录
// - Stop 关闭队列，处理完剩余事件后返回
type Dispatcher struct {
	ch       chan Event
	sinks    []Sink
	logger   *zap.Logger
	observer Observer
	timeout  time.Duration

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewDispatcher 创建分发器；size <= 0 时使用 256
func NewDispatcher(size int, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	return &Dispatcher{
		ch:       make(chan Event, size),
		sinks:    sinks,
		logger:   logger,
		observer: nopObserver{},
		timeout:  DefaultHandleTimeout,
	}
}

// SetObserver 设置指标回调（需在 Start 之前调用）
func (d *Dispatcher) SetObserver(o Observer) {
	if o != nil {
		d.observer = o
	}
}

// SetTimeout 设置单个 sink 的处理超时（需在 Start 之前调用）
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.timeout = timeout
	}
}

// Emit 非阻塞入队；返回 false 表示事件被丢弃
func (d *Dispatcher) Emit(ev Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.ch <- ev:
		return true
	default:
		d.observer.EventDropped(ev.Kind())
		d.logger.Warn("Event queue full, dropping event",
			zap.String("kind", ev.Kind()),
			zap.Int("capacity", cap(d.ch)),
		)
		return false
	}
}

// Len 队列中待处理的事件数
func (d *Dispatcher) Len() int {
	return len(d.ch)
}

// Start 启动分发协程（只启动一次）
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	d.wg.Add(1)
	go d.run(ctx)

	d.logger.Info("Event dispatcher started",
		zap.Int("sinks", len(d.sinks)),
		zap.Int("capacity", cap(d.ch)),
	)
}

// Stop 停止接收新事件，等待剩余事件处理完成（可重复调用）
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	// 上游取消后仍需把队列中已接收的事件送达
	base := context.WithoutCancel(ctx)
	for ev := range d.ch {
		d.dispatch(base, ev)
	}

	d.logger.Info("Event dispatcher stopped")
}

func (d *Dispatcher) dispatch(ctx context.Context, ev Event) {
	for _, sink := range d.sinks {
		hctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := sink.Handle(hctx, ev)
		cancel()
		if err != nil {
			d.observer.SinkFailed(sink.Name())
			d.logger.Error("Failed to handle event",
				zap.String("sink", sink.Name()),
				zap.String("kind", ev.Kind()),
				zap.Error(err),
			)
			// 继续下一个 sink，不中断
		}
	}
}

type nopObserver struct{}

func (nopObserver) EventDropped(string) {}
func (nopObserver) SinkFailed(string) {}
