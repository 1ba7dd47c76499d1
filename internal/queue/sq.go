// Package queue 提供提交队列（SQ）与完成队列（CQ）：两条方向相反的 SPSC Ring。
//
//	SQ: 调用方生产 → Dispatch Engine 消费
//	CQ: 引擎唯一的完成写入者生产 → 调用方消费
//
// 两侧各自只写自己的游标，这一划分是唯一的同步手段。
package queue

import (
	"fmt"
	"sync/atomic"

	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/internal/support/noop"
	"github.com/uniyakcom/uring/internal/support/spsc"
)

// SQ 提交队列
type SQ struct {
	ring *spsc.Ring[core.Op]

	// 生产者侧串行化点（单生产者时为空操作）
	mu noop.Mutex

	// 睡眠中的 QueuePoll 置位，Notify 据此决定是否需要穿越边界
	needWakeup atomic.Bool
}

// NewSQ 创建提交队列。shared=true 时允许多个 goroutine 通过 Submit 并发提交
func NewSQ(entries uint64, shared bool) *SQ {
	return &SQ{
		ring: spsc.NewRing[core.Op](entries),
		mu:   noop.NewMutex(shared),
	}
}

// Cap 容量
func (q *SQ) Cap() int { return int(q.ring.Cap()) }

// ─── Producer（调用方） ──────────────────────────────────────────────

// Acquire 预留一个槽位并清零；满时返回 core.ErrFull
// 返回的描述符在 Commit 前由调用方独占
//
// 共享提交模式下不可用：Acquire 与 Commit 之间没有所属关系，
// 一个生产者的 Commit 会发布另一个生产者尚未填写的槽位。共享模式只能用 Submit。
func (q *SQ) Acquire() (*core.Op, error) {
	if q.mu.Safe() {
		return nil, fmt.Errorf("queue: acquire on shared submission queue: %w", core.ErrNotSupported)
	}
	op, ok := q.ring.TryAcquire()
	if !ok {
		return nil, core.ErrFull
	}
	op.Reset()
	return op, nil
}

// Commit 按获取顺序发布至多 n 个已获取槽位（一次游标写入），返回发布数
func (q *SQ) Commit(n int) int {
	un := int(q.ring.Unpublished())
	if n > un {
		n = un
	}
	if n <= 0 {
		return 0
	}
	q.ring.Publish(q.ring.Tail() + uint64(n))
	return n
}

// Submit 复制并发布一批描述符（获取、填写、发布在同一临界区内，共享提交安全）
// 空间不足时发布能放下的部分并返回 core.ErrFull
func (q *SQ) Submit(ops []core.Op) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	// 单生产者时先发布此前通过 Acquire 获取的槽位，保持提交顺序
	q.ring.PublishPending()
	n := 0
	for i := range ops {
		slot, ok := q.ring.TryAcquire()
		if !ok {
			break
		}
		*slot = ops[i]
		n++
	}
	q.ring.PublishPending()
	if n < len(ops) {
		return n, core.ErrFull
	}
	return n, nil
}

// Pending 已获取未发布的槽位数
func (q *SQ) Pending() int { return int(q.ring.Unpublished()) }

// ─── Consumer（Dispatch Engine） ─────────────────────────────────────

// Peek 返回 (head, tail 快照)
func (q *SQ) Peek() (head, tail uint64) { return q.ring.Peek() }

// Slot 游标对应的描述符
func (q *SQ) Slot(cursor uint64) *core.Op { return q.ring.Slot(cursor) }

// Advance 释放已取出的槽位
func (q *SQ) Advance(head uint64) { q.ring.Advance(head) }

// Len 已发布未取出的描述符数
func (q *SQ) Len() int { return int(q.ring.Len()) }

// Tail 已发布游标（acquire 读）
func (q *SQ) Tail() uint64 { return q.ring.Tail() }

// ─── Wakeup flag ─────────────────────────────────────────────────────

// SetNeedWakeup 由 QueuePoll 循环设置/清除
func (q *SQ) SetNeedWakeup(v bool) { q.needWakeup.Store(v) }

// NeedWakeup 调用方检查是否需要显式唤醒
func (q *SQ) NeedWakeup() bool { return q.needWakeup.Load() }
