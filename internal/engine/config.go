package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/internal/support/sched"
)

// Config 引擎构造配置（构造后不可变）
type Config struct {
	// 容量（2 的幂；CQEntries 不小于 SQEntries）
	SQEntries uint64
	CQEntries uint64

	// 轮询
	Mode        core.Mode
	IdleTimeout time.Duration    // QueuePoll 空闲超时
	Spin        sched.SpinPolicy // QueuePoll 空转策略
	BusySpin    sched.SpinPolicy // BusyPoll 空转策略

	// 执行
	Executor    core.Executor
	Middlewares []core.Middleware
	Workers     int // >0 ants 池大小；0 = 按平台取默认；<0 在分发 goroutine 上内联执行

	// 多个 goroutine 共用提交队列（Submit 串行化；Acquire/Commit 不可用）
	SharedSubmit bool

	Clock  sched.Clock
	Logger *slog.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		SQEntries:   256,
		CQEntries:   512,
		Mode:        core.ModeOnDemand,
		IdleTimeout: 10 * time.Millisecond,
		Spin:        sched.DefaultSpin(),
		BusySpin:    sched.BusySpin(),
		Workers:     0,
		Clock:       sched.RealClock(),
	}
}

// optPoolSz 根据 OS 获取默认工作池大小（执行器可能阻塞，按核数放大）
func optPoolSz() int {
	base := runtime.NumCPU()
	switch runtime.GOOS {
	case "linux":
		return base * 15
	case "darwin":
		return base * 12
	case "windows":
		return base * 10
	default:
		return base * 5
	}
}

func isPow2(n uint64) bool { return n > 0 && n&(n-1) == 0 }

// validate 补全默认值并检查容量
func (c *Config) validate() error {
	if c.SQEntries == 0 {
		c.SQEntries = 256
	}
	if c.CQEntries == 0 {
		c.CQEntries = 2 * c.SQEntries
	}
	if !isPow2(c.SQEntries) || !isPow2(c.CQEntries) {
		return fmt.Errorf("engine: sq=%d cq=%d: capacities must be powers of two", c.SQEntries, c.CQEntries)
	}
	// 一条链最长为 SQ 容量，必须能一次拿到全部完成额度
	if c.CQEntries < c.SQEntries {
		return fmt.Errorf("engine: cq=%d smaller than sq=%d", c.CQEntries, c.SQEntries)
	}
	if c.Mode > core.ModeHybrid {
		return fmt.Errorf("engine: unknown mode %d", c.Mode)
	}
	if c.IdleTimeout < 0 {
		c.IdleTimeout = 0
	}
	if c.Clock == nil {
		c.Clock = sched.RealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Executor == nil {
		c.Executor = core.ExecutorFunc(func(_ context.Context, _ *core.Request) int32 {
			return core.ResNotSupported
		})
	}
	return nil
}
