// Package sched 提供后台轮询循环共用的空转策略、泊车/唤醒与时钟抽象。
//
// 三级自适应空转（SpinPolicy）：
//   - Level 0: CPU spin（PAUSE 指令，~3ns/iter，不进入 Go 调度器）
//   - Level 1: 协作让出（runtime.Gosched）
//   - Level 2: 泊车（Park=true 时由调用方进入阻塞等待；BusyPoll 永不泊车）
//
// 空转次数与时钟均可注入，测试可替换为确定性的假时间。
package sched

import (
	"runtime"
	"sync/atomic"
	"time"
	_ "unsafe"
)

//go:linkname runtime_procyield runtime.procyield
func runtime_procyield(cycles uint32)

// SpinPolicy 空转策略
type SpinPolicy struct {
	Spins  int  // Level 0 自旋轮数
	Yields int  // Level 1 让出轮数
	Park   bool // 超过 Spins+Yields 后是否允许泊车
}

// DefaultSpin QueuePoll 默认策略：4096 × ~3ns ≈ 12μs 自旋窗口，随后 256 次让出
func DefaultSpin() SpinPolicy {
	return SpinPolicy{Spins: 4096, Yields: 256, Park: true}
}

// BusySpin BusyPoll 策略：短自旋后持续让出，从不泊车
func BusySpin() SpinPolicy {
	return SpinPolicy{Spins: 1024, Yields: 0, Park: false}
}

// Idler 按 SpinPolicy 推进的空转计数器（单 goroutine 使用）
type Idler struct {
	policy SpinPolicy
	idle   int
}

// NewIdler 创建空转计数器
func NewIdler(p SpinPolicy) *Idler {
	return &Idler{policy: p}
}

// Reset 有新工作时重置
func (i *Idler) Reset() { i.idle = 0 }

// Idle 执行一次空转；返回 true 表示已越过自旋/让出窗口，调用方应泊车
func (i *Idler) Idle() bool {
	i.idle++
	if i.idle <= i.policy.Spins {
		runtime_procyield(10)
		return false
	}
	if i.idle <= i.policy.Spins+i.policy.Yields || !i.policy.Park {
		runtime.Gosched()
		return false
	}
	return true
}

// ─── Parker ──────────────────────────────────────────────────────────

// Parker 单等待者泊车/唤醒
// 唤醒方仅在有等待者泊车时才发送信号（避免无谓的 channel 操作）
type Parker struct {
	parked atomic.Int32
	sem    chan struct{}
}

// NewParker 创建 Parker
func NewParker() *Parker {
	return &Parker{sem: make(chan struct{}, 1)}
}

// Prepare 声明即将泊车；调用方随后必须重新检查条件，再调用 Park 或 Cancel
func (p *Parker) Prepare() { p.parked.Add(1) }

// Cancel 撤销 Prepare
func (p *Parker) Cancel() { p.parked.Add(-1) }

// Parked 是否有等待者
func (p *Parker) Parked() bool { return p.parked.Load() > 0 }

// C 返回信号 channel，供调用方与其他 channel 一起 select
// 从 C 收到信号或放弃等待后须调用 Cancel
func (p *Parker) C() <-chan struct{} { return p.sem }

// Unpark 唤醒泊车者（仅在有泊车者时发送）；返回是否发送了信号
func (p *Parker) Unpark() bool {
	if p.parked.Load() == 0 {
		return false
	}
	select {
	case p.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Drain 丢弃残留信号
func (p *Parker) Drain() {
	select {
	case <-p.sem:
	default:
	}
}

// ─── Clock ───────────────────────────────────────────────────────────

// Timer 可停止的定时器
type Timer interface {
	Stop() bool
}

// Clock 时钟抽象
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock 系统时钟
func RealClock() Clock { return realClock{} }
