// Package optimize advisor推荐引擎
package optimize

import (
	"time"

	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/internal/support/sched"
)

const (
	minEntries = 8
	maxEntries = 1 << 15
)

// Advised 推荐配置
type Advised struct {
	Profile     *Profile
	Mode        core.Mode
	SQEntries   uint64
	CQEntries   uint64
	IdleTimeout time.Duration
	Workers     int
	Shared      bool
	Spin        sched.SpinPolicy
}

// Advisor 推荐引擎
type Advisor struct{}

// NewAdvisor 创建推荐引擎
func NewAdvisor() *Advisor {
	return &Advisor{}
}

// Advise 根据Profile推荐配置
func (a *Advisor) Advise(p *Profile) *Advised {
	advised := &Advised{
		Profile:     p,
		Mode:        p.Mode,
		IdleTimeout: p.IdleTimeout,
		Workers:     p.Workers,
		Shared:      p.Shared,
		Spin:        sched.DefaultSpin(),
	}

	sq := p.SQEntries
	if sq == 0 {
		sq = uint64(p.Conc)
	}
	advised.SQEntries = roundPow2(sq)

	// 完成队列至少与提交队列等大；默认 2 倍，容纳 multishot 的额外完成
	cq := p.CQEntries
	if cq == 0 {
		cq = 2 * advised.SQEntries
	}
	advised.CQEntries = roundPow2(cq)
	if advised.CQEntries < advised.SQEntries {
		advised.CQEntries = advised.SQEntries
	}

	if advised.Mode.QueuePolls() && advised.IdleTimeout <= 0 {
		advised.IdleTimeout = 10 * time.Millisecond
	}

	// 延迟敏感：延长空转，推迟让出
	if p.Lat == "ultra_low" {
		advised.Spin = sched.BusySpin()
	}

	// 少核机器上限制执行池，避免与轮询 goroutine 争抢
	if advised.Workers == 0 && p.Cores > 0 && p.Cores < 2 {
		advised.Workers = 64
	}

	return advised
}

// roundPow2 向上取整到 2 的幂并限制在 [minEntries, maxEntries]
func roundPow2(n uint64) uint64 {
	if n <= minEntries {
		return minEntries
	}
	if n >= maxEntries {
		return maxEntries
	}
	v := uint64(1)
	for v < n {
		v <<= 1
	}
	return v
}
