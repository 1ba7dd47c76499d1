// Package wpool 提供执行器工作池：操作在池内 goroutine 上执行，Dispatch Engine 自身不被慢操作阻塞。
//
// 基于 github.com/panjf2000/ants/v2：
//   - 非阻塞 Submit：池满时立即返回 ants.ErrPoolOverload，由调用方决定溢出去处
//   - PanicHandler 统计 panic（引擎在任务内部已兜底，这里只计数）
//   - Release 时等待已提交任务执行完毕（ReleaseTimeout）
package wpool

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
)

// releaseWait Release 等待在途任务的上限
const releaseWait = 5 * time.Second

// Pool 固定大小 goroutine 池
type Pool struct {
	p      *ants.Pool
	panics atomic.Int64
	closed atomic.Bool
}

// New 创建 worker pool，size 为 worker 数量（<=0 时为 1）。
func New(size int) (*Pool, error) {
	if size <= 0 {
		size = 1
	}
	wp := &Pool{}
	p, err := ants.NewPool(size,
		ants.WithPreAlloc(true),
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(any) { wp.panics.Add(1) }),
	)
	if err != nil {
		return nil, fmt.Errorf("wpool: %w", err)
	}
	wp.p = p
	return wp, nil
}

// Submit 提交任务到池，从不阻塞。池满返回 ants.ErrPoolOverload，池关闭后返回 ants.ErrPoolClosed。
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ants.ErrPoolClosed
	}
	return p.p.Submit(task)
}

// Running 正在执行的 worker 数
func (p *Pool) Running() int { return p.p.Running() }

// Cap 池容量
func (p *Pool) Cap() int { return p.p.Cap() }

// Panics 逃逸到池层的 panic 次数
func (p *Pool) Panics() int64 { return p.panics.Load() }

// Release 关闭池并等待已提交任务执行完毕（最多 releaseWait）。
func (p *Pool) Release() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil // 已关闭
	}
	if err := p.p.ReleaseTimeout(releaseWait); err != nil && !errors.Is(err, ants.ErrPoolClosed) {
		return fmt.Errorf("wpool: release: %w", err)
	}
	return nil
}

// IsClosed 判断 err 是否为池已关闭
func IsClosed(err error) bool { return errors.Is(err, ants.ErrPoolClosed) }

// IsOverload 判断 err 是否为池满
func IsOverload(err error) bool { return errors.Is(err, ants.ErrPoolOverload) }
