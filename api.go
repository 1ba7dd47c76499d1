// Package uring 统一API入口
//
// 共享内存异步 I/O 环：调用方在提交队列中就地填写操作描述符并批量发布，
// 引擎分发给执行器（内存设备 / 系统调用 / 内核 io_uring），结果写入完成队列。
//
// 用法:
//
//	r, _ := uring.ForOnDemand(mem.New())
//	defer r.Close()
//
//	op, _ := r.Acquire()
//	core.PrepRead(op, fd, buf, 0, 1)
//	r.Commit(1)
//	r.Notify()
//	c, _ := r.Wait(time.Second)
//	r.Ack(c)
package uring

import (
	"time"

	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/internal/engine"
	"github.com/uniyakcom/uring/optimize"
)

// Ring 导出Ring接口
type Ring = core.Ring

// Engine 导出引擎实现（额外提供 Registry / AckN）
type Engine = engine.Engine

// Op 导出操作描述符
type Op = core.Op

// Completion 导出完成描述符
type Completion = core.Completion

// Request 导出执行器请求
type Request = core.Request

// Executor 导出执行器接口
type Executor = core.Executor

// ExecutorFunc 导出执行器函数适配器
type ExecutorFunc = core.ExecutorFunc

// Middleware 导出执行器中间件
type Middleware = core.Middleware

// Stats 导出运行时统计
type Stats = core.Stats

// Profile 导出Profile
type Profile = optimize.Profile

// 常用错误
var (
	ErrFull              = core.ErrFull
	ErrTimedOut          = core.ErrTimedOut
	ErrClosed            = core.ErrClosed
	ErrInvalidResource   = core.ErrInvalidResource
	ErrPropagatedFailure = core.ErrPropagatedFailure
	ErrCancelledNotFound = core.ErrCancelledNotFound
)

// ═══════════════════════════════════════════════════════════════════
// 第零层：New() 零配置入口
// ═══════════════════════════════════════════════════════════════════

// New 零配置创建引擎（自动检测运行时环境，选择轮询模式）
//   - >= 4 核: QueuePoll
//   - <  4 核: OnDemand
func New(exec Executor) (*Engine, error) {
	return Option(optimize.AutoDetect(), exec)
}

// ═══════════════════════════════════════════════════════════════════
// 第一层：ForXxx() 四种轮询模式
// ═══════════════════════════════════════════════════════════════════

// ForOnDemand 按需穿越：Notify 分发，Wait 收割，无后台 goroutine
func ForOnDemand(exec Executor) (*Engine, error) {
	return Option(optimize.OnDemand(), exec)
}

// ForQueuePoll 后台提交轮询：活跃期提交无穿越，空闲超时后睡眠
func ForQueuePoll(exec Executor) (*Engine, error) {
	return Option(optimize.QueuePoll(), exec)
}

// ForBusyPoll 后台完成忙轮询：适合设备轮询执行器
func ForBusyPoll(exec Executor) (*Engine, error) {
	return Option(optimize.BusyPoll(), exec)
}

// ForHybrid 提交轮询 + 完成忙轮询
func ForHybrid(exec Executor) (*Engine, error) {
	return Option(optimize.Hybrid(), exec)
}

// ═══════════════════════════════════════════════════════════════════
// 第二层：Scenario() 字符串配置
// ═══════════════════════════════════════════════════════════════════

// Scenario 预设场景快速创建
// name: "ondemand", "qpoll", "busypoll", "hybrid"
func Scenario(name string, exec Executor) (*Engine, error) {
	return Option(optimize.Preset(name), exec)
}

// FromEnv 按环境变量（及可选 .env 文件）创建引擎
func FromEnv(exec Executor, files ...string) (*Engine, error) {
	p, err := optimize.FromEnv(files...)
	if err != nil {
		return nil, err
	}
	return Option(p, exec)
}

// ═══════════════════════════════════════════════════════════════════
// 第三层：Option() 完全控制
// ═══════════════════════════════════════════════════════════════════

// Option 按 Profile 创建引擎（完全控制）
func Option(p *Profile, exec Executor, mws ...Middleware) (*Engine, error) {
	if p == nil {
		p = optimize.OnDemand()
	}
	advised := optimize.NewAdvisor().Advise(p)
	return optimize.Build(advised, exec, nil, mws...)
}

// ═══════════════════════════════════════════════════════════════════
// 便捷 API
// ═══════════════════════════════════════════════════════════════════

// SubmitOps 复制并发布一批描述符后通知引擎
// 空间不足时发布能放下的部分，仍然通知，并返回 ErrFull
func SubmitOps(r Ring, ops ...Op) (int, error) {
	n, err := r.Submit(ops...)
	if n > 0 {
		if nerr := r.Notify(); nerr != nil {
			return n, nerr
		}
	}
	return n, err
}

// Drain 收集完成直到拿到 n 个或超时；每个完成复制后立即确认
func Drain(r Ring, n int, timeout time.Duration) ([]Completion, error) {
	out := make([]Completion, 0, n)
	deadline := time.Now().Add(timeout)
	for len(out) < n {
		left := time.Until(deadline)
		if left <= 0 {
			return out, ErrTimedOut
		}
		c, err := r.Wait(left)
		if err != nil {
			return out, err
		}
		out = append(out, *c)
		r.Ack(c)
	}
	return out, nil
}
