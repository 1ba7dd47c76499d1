// Package poller 提供驱动 Dispatch Engine 的后台轮询循环与状态机。
//
// 状态:
//
//	Idle ──(OnDemand Wait 阻塞)──▶ InterruptWait ──▶ Idle
//	QueuePoll ──(IdleTimeout 内无新提交)──▶ QueuePollSleeping ──(Notify)──▶ QueuePoll
//	BusyPoll（常驻，不睡眠）
//
// 角色（构造时按模式静态分配，保证 SQ 单消费者、CQ 单生产者）:
//   - 分发者: QueuePoll 循环；未启用时由调用方在 Notify 中分发
//   - 收割者（CQ 唯一写入者）: BusyPoll 循环 > QueuePoll 循环 > 调用方
package poller

import (
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/internal/support/sched"
)

// Target 轮询循环驱动的引擎侧操作
type Target interface {
	// Dispatch 排空提交队列，返回分发数
	Dispatch() int
	// Reap 将已产生的完成非阻塞地写入完成队列，返回写入数
	Reap() int
	// Deliver 写入一个从 Completions 收到的完成
	Deliver(c core.Completion)
	// Completions 完成汇聚 channel（睡眠中的收割者在此等待）
	Completions() <-chan core.Completion
	// Pending 已提交未分发的描述符数
	Pending() int
	// SetNeedWakeup 设置提交队列唤醒标志
	SetNeedWakeup(v bool)
	// PollDevice 推进设备轮询后端（无则返回 0）
	PollDevice() int
}

// Config 轮询配置
type Config struct {
	Mode        core.Mode
	IdleTimeout time.Duration    // QueuePoll 空闲超时（0 = 空转窗口耗尽即睡眠）
	Spin        sched.SpinPolicy // QueuePoll 空转策略
	Busy        sched.SpinPolicy // BusyPoll 空转策略
	Clock       sched.Clock
	Logger      *slog.Logger
}

// Poller 状态机
type Poller struct {
	cfg   Config
	t     Target
	log   *slog.Logger
	reaps bool // QueuePoll 循环是否兼任收割者（非 Hybrid）

	wake    chan struct{}
	state   atomic.Uint32
	sleeps  atomic.Int64
	wakeups atomic.Int64
}

// New 创建 Poller
func New(cfg Config, t Target) *Poller {
	if cfg.Clock == nil {
		cfg.Clock = sched.RealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Poller{
		cfg:   cfg,
		t:     t,
		log:   cfg.Logger,
		reaps: cfg.Mode == core.ModeQueuePoll,
		wake:  make(chan struct{}, 1),
	}
	p.state.Store(uint32(core.StateIdle))
	return p
}

// Start 按模式启动后台循环
func (p *Poller) Start(g *errgroup.Group, done <-chan struct{}) {
	if p.cfg.Mode.QueuePolls() {
		p.SetState(core.StateQueuePoll)
		g.Go(func() error { return p.queuePoll(done) })
	}
	if p.cfg.Mode.BusyPolls() {
		if !p.cfg.Mode.QueuePolls() {
			p.SetState(core.StateBusyPoll)
		}
		g.Go(func() error { return p.busyPoll(done) })
	}
}

// CallerDispatches 调用方是否负责分发（Notify 中）
func (p *Poller) CallerDispatches() bool { return !p.cfg.Mode.QueuePolls() }

// CallerReaps 调用方是否为收割者
func (p *Poller) CallerReaps() bool { return p.cfg.Mode == core.ModeOnDemand }

// State 当前状态
func (p *Poller) State() core.PollState { return core.PollState(p.state.Load()) }

// SetState 设置状态
func (p *Poller) SetState(s core.PollState) { p.state.Store(uint32(s)) }

// Sleeps QueuePoll 睡眠次数
func (p *Poller) Sleeps() int64 { return p.sleeps.Load() }

// Wakeups QueuePoll 唤醒次数
func (p *Poller) Wakeups() int64 { return p.wakeups.Load() }

// Wake 睡眠中的 QueuePoll 需要显式唤醒；返回是否发生了边界穿越
func (p *Poller) Wake(needWakeup bool) bool {
	if !needWakeup {
		return false
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// queuePoll 后台提交队列轮询：有提交即分发，IdleTimeout 内无新提交则睡眠
func (p *Poller) queuePoll(done <-chan struct{}) error {
	idler := sched.NewIdler(p.cfg.Spin)
	last := p.cfg.Clock.Now()
	for {
		select {
		case <-done:
			return nil
		default:
		}

		n := p.t.Dispatch()
		if p.reaps {
			p.t.Reap()
		}
		if n > 0 {
			last = p.cfg.Clock.Now()
			idler.Reset()
			continue
		}
		if !idler.Idle() {
			continue
		}
		if p.cfg.Clock.Now().Sub(last) < p.cfg.IdleTimeout {
			runtime.Gosched()
			continue
		}
		if !p.sleep(done) {
			return nil
		}
		last = p.cfg.Clock.Now()
		idler.Reset()
	}
}

// sleep 进入睡眠子状态；返回 false 表示引擎关闭
// 睡眠期间若兼任收割者，仍持续把完成写入完成队列
func (p *Poller) sleep(done <-chan struct{}) bool {
	// 丢弃残留唤醒令牌 → 置位 → 重新检查，避免丢失唤醒
	select {
	case <-p.wake:
	default:
	}
	p.t.SetNeedWakeup(true)
	if p.t.Pending() > 0 {
		p.t.SetNeedWakeup(false)
		return true
	}

	p.SetState(core.StateQueuePollSleeping)
	p.sleeps.Add(1)
	p.log.Debug("uring: queue poller sleeping", "idle_timeout", p.cfg.IdleTimeout)

	var comps <-chan core.Completion
	if p.reaps {
		comps = p.t.Completions()
	}
	for {
		select {
		case <-p.wake:
			p.t.SetNeedWakeup(false)
			p.wakeups.Add(1)
			p.SetState(core.StateQueuePoll)
			p.log.Debug("uring: queue poller woken")
			return true
		case c := <-comps:
			p.t.Deliver(c)
		case <-done:
			return false
		}
	}
}

// busyPoll 忙轮询：持续推进设备并收割完成，从不睡眠
func (p *Poller) busyPoll(done <-chan struct{}) error {
	idler := sched.NewIdler(p.cfg.Busy)
	for {
		select {
		case <-done:
			return nil
		default:
		}
		n := p.t.PollDevice()
		n += p.t.Reap()
		if n > 0 {
			idler.Reset()
			continue
		}
		idler.Idle()
	}
}
