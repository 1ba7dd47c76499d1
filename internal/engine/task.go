package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/internal/support/sched"
)

// task 引擎持有的在途操作（sync.Pool 复用）
//
// task 会被复用，交给执行器的 ctx 则不会：每个操作在首次调用执行器时
// 创建独立的 context.WithCancel，执行器返回后仍持有它时，Err 只会从 nil 变为 Canceled。
type task struct {
	e   *Engine
	op  core.Op
	req core.Request

	// 链中的后继（仅链首持有完整链）
	next *task

	// 分发时获取、完成时释放的资源
	fixedID uint32
	memID   uint32
	bufSel  bool
	bufID   uint16
	buf     []byte

	timer    sched.Timer
	tracked  bool        // 已登记到在途表
	claimed  atomic.Bool // 完成归属（定时器与取消竞争时只有一方胜出）
	canceled atomic.Bool

	mu   sync.Mutex
	ctx  context.Context
	stop context.CancelFunc
}

var taskPool = sync.Pool{New: func() any { return &task{} }}

func getTask(e *Engine, op *core.Op) *task {
	t := taskPool.Get().(*task)
	t.e = e
	t.op = *op
	t.req = core.Request{Op: &t.op}
	return t
}

func putTask(t *task) {
	t.e = nil
	t.next = nil
	t.op = core.Op{}
	t.req = core.Request{}
	t.fixedID, t.memID = 0, 0
	t.bufSel, t.bufID, t.buf = false, 0, nil
	t.timer = nil
	t.tracked = false
	t.claimed.Store(false)
	t.canceled.Store(false)
	if t.stop != nil {
		// 释放 ctx；执行器保留的引用此后观察到 Canceled
		t.stop()
	}
	t.ctx, t.stop = nil, nil
	taskPool.Put(t)
}

// claim 获取完成归属权
func (t *task) claim() bool { return t.claimed.CompareAndSwap(false, true) }

// cancel 标记取消并取消已交给执行器的 ctx
func (t *task) cancel() {
	t.mu.Lock()
	if !t.canceled.Swap(true) && t.stop != nil {
		t.stop()
	}
	t.mu.Unlock()
}

// runCtx 交给执行器的 ctx（延迟创建，从不观察取消的原生操作不分配）
func (t *task) runCtx() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx == nil {
		t.ctx, t.stop = context.WithCancel(context.Background())
		if t.canceled.Load() {
			t.stop()
		}
	}
	return t.ctx
}
