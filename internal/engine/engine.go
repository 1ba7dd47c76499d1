// Package engine 实现 Dispatch Engine：从提交队列取出描述符，
// 解析资源、按链/多次完成语义交给执行器，并把结果写入完成队列。
//
// 并发角色（由 poller 按模式静态分配）:
//   - 分发者（提交队列唯一消费者）: QueuePoll 循环，或调用方 Notify
//   - 收割者（完成队列唯一生产者）: BusyPoll 循环 > QueuePoll 循环 > 调用方
//
// 执行器 goroutine、定时器回调、multishot 循环产生的完成一律发送到
// 汇聚 channel（容量 = 完成队列容量），由收割者搬运进完成队列。
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/internal/poller"
	"github.com/uniyakcom/uring/internal/queue"
	"github.com/uniyakcom/uring/internal/registry"
	"github.com/uniyakcom/uring/internal/support/noop"
	"github.com/uniyakcom/uring/internal/support/pool"
	"github.com/uniyakcom/uring/internal/support/wpool"
	"github.com/uniyakcom/uring/util"
)

// Engine Dispatch Engine（实现 core.Ring）
type Engine struct {
	// === 热路径 ===
	sq      *queue.SQ
	cq      *queue.CQ
	reap    chan core.Completion
	credits atomic.Int64
	closed  atomic.Bool
	_       [64]byte // 与冷路径字段隔离

	cfg      Config
	exec     core.Executor
	pollable core.Pollable
	pool     *wpool.Pool // nil = 内联执行
	poller   *poller.Poller
	reg      *registry.Registry
	log      *slog.Logger

	// 分发者串行化（共享提交时多个调用方可能同时 Notify）
	dmu noop.Mutex

	// 在途表：tag → task（取消查找）
	imu   sync.Mutex
	tasks map[uint64]*task

	// 等待额度的 multishot
	cmu           sync.Mutex
	creditCh      chan struct{}
	creditWaiters atomic.Int32

	// 引擎分配的提供缓冲区
	amu   sync.Mutex
	arena *pool.Arena

	// 生命周期
	group     errgroup.Group
	wg        sync.WaitGroup // multishot / 溢出执行 goroutine
	done      chan struct{}
	closeOnce sync.Once
	inflight  atomic.Int64

	// 运行时统计（per-CPU 无竞争计数）
	submitted    *util.PerCPUCounter
	dispatched   *util.PerCPUCounter
	completed    *util.PerCPUCounter
	backpressure *util.PerCPUCounter
	crossings    *util.PerCPUCounter
	panics       *util.PerCPUCounter
	overflow     *util.PerCPUCounter
}

var _ core.Ring = (*Engine)(nil)

// New 按配置创建引擎并启动后台轮询循环
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		sq:           queue.NewSQ(c.SQEntries, c.SharedSubmit),
		reap:         make(chan core.Completion, c.CQEntries),
		cfg:          c,
		exec:         core.Chain(c.Executor, c.Middlewares...),
		reg:          registry.New(),
		log:          c.Logger,
		dmu:          noop.NewMutex(c.SharedSubmit),
		tasks:        make(map[uint64]*task),
		arena:        pool.NewArena(),
		done:         make(chan struct{}),
		submitted:    util.NewPerCPUCounter(),
		dispatched:   util.NewPerCPUCounter(),
		completed:    util.NewPerCPUCounter(),
		backpressure: util.NewPerCPUCounter(),
		crossings:    util.NewPerCPUCounter(),
		panics:       util.NewPerCPUCounter(),
		overflow:     util.NewPerCPUCounter(),
	}
	e.cq = queue.NewCQ(c.CQEntries, e.returnCredits)
	e.credits.Store(int64(e.cq.Cap()))
	// 中间件包装前判断：设备轮询能力属于底层执行器
	if p, ok := c.Executor.(core.Pollable); ok {
		e.pollable = p
	}

	if c.Workers >= 0 {
		n := c.Workers
		if n == 0 {
			n = optPoolSz()
		}
		wp, err := wpool.New(n)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.pool = wp
	}

	e.poller = poller.New(poller.Config{
		Mode:        c.Mode,
		IdleTimeout: c.IdleTimeout,
		Spin:        c.Spin,
		Busy:        c.BusySpin,
		Clock:       c.Clock,
		Logger:      c.Logger,
	}, target{e})
	e.poller.Start(&e.group, e.done)

	e.log.Debug("uring: engine started",
		"mode", c.Mode.String(), "sq", c.SQEntries, "cq", c.CQEntries, "workers", c.Workers)
	return e, nil
}

// Registry 资源注册表
func (e *Engine) Registry() *registry.Registry { return e.reg }

// ─── 提交 ────────────────────────────────────────────────────────────

// Acquire 获取一个提交槽位
func (e *Engine) Acquire() (*core.Op, error) {
	if e.closed.Load() {
		return nil, core.ErrClosed
	}
	return e.sq.Acquire()
}

// Commit 发布 n 个已获取槽位（纯内存写入，不穿越边界）
func (e *Engine) Commit(n int) int {
	k := e.sq.Commit(n)
	if k > 0 {
		e.submitted.Add(int64(k))
	}
	return k
}

// Submit 复制并发布一批描述符
func (e *Engine) Submit(ops ...core.Op) (int, error) {
	if e.closed.Load() {
		return 0, core.ErrClosed
	}
	n, err := e.sq.Submit(ops)
	if n > 0 {
		e.submitted.Add(int64(n))
	}
	return n, err
}

// Notify 边界穿越通知
//   - OnDemand / BusyPoll: 调用方在此分发
//   - QueuePoll / Hybrid: 仅在轮询循环睡眠时唤醒它，否则为纯内存检查
func (e *Engine) Notify() error {
	if e.closed.Load() {
		return core.ErrClosed
	}
	if e.poller.CallerDispatches() {
		e.crossings.Add(1)
		e.dispatch()
		return nil
	}
	if e.poller.Wake(e.sq.NeedWakeup()) {
		e.crossings.Add(1)
	}
	return nil
}

// ─── 完成 ────────────────────────────────────────────────────────────

// TryPoll 非阻塞获取下一个完成（槽位瞬时视图，Ack 前有效）
func (e *Engine) TryPoll() (*core.Completion, bool) {
	if e.poller.CallerReaps() {
		e.reapAvailable()
	}
	return e.cq.TryPoll()
}

// Wait 等待下一个完成；timeout <= 0 表示无限等待（直到关闭）
func (e *Engine) Wait(timeout time.Duration) (*core.Completion, error) {
	if c, ok := e.TryPoll(); ok {
		return c, nil
	}
	if _, err := e.WaitMin(1, timeout); err != nil {
		return nil, err
	}
	c, ok := e.cq.TryPoll()
	if !ok {
		return nil, core.ErrEmpty
	}
	return c, nil
}

// WaitMin 一次阻塞调用内等待至少 min 个完成可被 TryPoll 取得，返回可取得的数量
func (e *Engine) WaitMin(min int, timeout time.Duration) (int, error) {
	if min <= 0 {
		min = 1
	}
	if min > e.cq.Cap() {
		min = e.cq.Cap()
	}
	// 调用方分发的模式：等待前先提交积压（与 submit-and-wait 一次穿越等价）
	if e.poller.CallerDispatches() && e.sq.Len() > 0 && !e.closed.Load() {
		e.dispatch()
	}

	var err error
	if e.poller.CallerReaps() {
		err = e.waitReaping(min, timeout)
	} else {
		var crossed bool
		crossed, err = e.cq.WaitMin(min, timeout, e.done)
		if crossed {
			e.crossings.Add(1)
		}
	}
	return e.cq.Ready(), err
}

// Ack 确认一个完成，释放槽位并归还额度
func (e *Engine) Ack(c *core.Completion) { e.cq.Ack(c) }

// AckTag 按标签确认最早一个已观察未确认的完成
func (e *Engine) AckTag(tag uint64) bool { return e.cq.AckTag(tag) }

// AckN 确认最早的 n 个已观察未确认完成
func (e *Engine) AckN(n int) int { return e.cq.Advance(n) }

// ─── 资源 ────────────────────────────────────────────────────────────

// Register 注册句柄
func (e *Engine) Register(handle int, kind core.Kind) (uint32, error) {
	return e.reg.Register(handle, kind)
}

// RegisterBuffer 注册内存区
func (e *Engine) RegisterBuffer(mem []byte) (uint32, error) {
	return e.reg.RegisterBuffer(mem)
}

// Unregister 注销 id
func (e *Engine) Unregister(id uint32) error {
	return e.reg.Unregister(id)
}

// ProvideBufferGroup 从 arena 分配 count 个 size 字节缓冲区放入缓冲组
// bid 接续组内已有的最大 bid；16 位 bid 空间不足时整体拒绝
func (e *Engine) ProvideBufferGroup(group uint16, count, size int) error {
	if count <= 0 || size <= 0 || count > registry.MaxBIDs {
		return fmt.Errorf("engine: provide %d buffers of %d bytes: %w",
			count, size, &core.ExecutionError{Res: core.ResInvalid})
	}
	if free := registry.MaxBIDs - e.reg.NextBID(group); count > free {
		return fmt.Errorf("engine: provide %d buffers to group %d (%d bids left): %w",
			count, group, free, &core.ExecutionError{Res: core.ResInvalid})
	}
	e.amu.Lock()
	bufs := e.arena.AllocN(count, size)
	e.amu.Unlock()
	if _, err := e.reg.ProvideNext(group, bufs); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}

// ─── 状态 / 统计 ─────────────────────────────────────────────────────

// State 当前 Poller 状态
func (e *Engine) State() core.PollState { return e.poller.State() }

// Stats 返回运行时统计
func (e *Engine) Stats() core.Stats {
	return core.Stats{
		Submitted:    e.submitted.Read(),
		Dispatched:   e.dispatched.Read(),
		Completed:    e.completed.Read(),
		Backpressure: e.backpressure.Read(),
		Crossings:    e.crossings.Read(),
		Sleeps:       e.poller.Sleeps(),
		Wakeups:      e.poller.Wakeups(),
		Panics:       e.panics.Read(),
		Overflow:     e.overflow.Read(),
		Inflight:     e.inflight.Load(),
		SQDepth:      int64(e.sq.Len()),
		CQDepth:      int64(e.cq.Len()),
	}
}

// ─── 关闭 ────────────────────────────────────────────────────────────

// Close 立即关闭：取消全部在途操作，停止后台循环，释放工作池
func (e *Engine) Close() {
	e.closed.Store(true)
	e.shutdown()
}

func (e *Engine) shutdown() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.cancelAll()
		_ = e.group.Wait()
		e.wg.Wait()
		if e.pool != nil {
			if err := e.pool.Release(); err != nil {
				e.log.Warn("uring: worker pool release", "err", err)
			}
		}
		e.log.Debug("uring: engine closed", "inflight", e.inflight.Load())
	})
}

// GracefulClose 停止接受提交，等待非 multishot 在途操作完成（multishot 被拆除），
// 超时后强制关闭。timeout=0 时等效于 Close()
func (e *Engine) GracefulClose(timeout time.Duration) error {
	if timeout <= 0 {
		e.Close()
		return nil
	}
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.cancelMultishot()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()

	var err error
	for e.inflight.Load() > 0 || e.sq.Len() > 0 {
		// 提交队列中剩余的描述符仍需分发
		if e.poller.CallerDispatches() {
			e.dispatch()
		} else {
			e.poller.Wake(e.sq.NeedWakeup())
		}
		if e.poller.CallerReaps() {
			e.reapAvailable()
		}
		select {
		case <-ctx.Done():
			err = fmt.Errorf("engine: graceful close: %d in flight: %w", e.inflight.Load(), core.ErrTimedOut)
		case <-tick.C:
			continue
		}
		break
	}
	e.shutdown()
	return err
}

func (e *Engine) cancelMultishot() {
	e.imu.Lock()
	for _, t := range e.tasks {
		if t.op.Multishot() {
			t.cancel()
		}
	}
	e.imu.Unlock()
}

// ─── poller.Target ───────────────────────────────────────────────────

type target struct{ e *Engine }

func (t target) Dispatch() int { return t.e.dispatch() }

func (t target) Reap() int { return t.e.reapAvailable() }

func (t target) Deliver(c core.Completion) { t.e.deliver(c) }

func (t target) Completions() <-chan core.Completion { return t.e.reap }

func (t target) Pending() int { return t.e.sq.Len() }

func (t target) SetNeedWakeup(v bool) { t.e.sq.SetNeedWakeup(v) }

func (t target) PollDevice() int {
	if t.e.pollable == nil {
		return 0
	}
	return t.e.pollable.PollOnce()
}
