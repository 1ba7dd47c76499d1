// SPSC 无等待环形缓冲区：单生产者/单消费者
//
// 热路径零 CAS：仅使用 atomic Load/Store
// x86-64 上 Load/Store 编译为普通 MOV（TSO 保证）
//
// 两阶段 API（提交队列/完成队列共用）：
//   - 生产者: TryAcquire 预留槽位（本地 pending 游标）→ 就地填写 → Publish 发布 tail
//   - 消费者: Peek 快照 (head, tail) → Slot 读取 → Advance 释放 head
//
// SPSC 安全条件由调用方结构保证（每侧只写自己的游标），不做运行时检查：
//   - 第二个生产者或第二个消费者属于未定义行为
//   - tail 的 Store 为 release，Peek 中 tail 的 Load 为 acquire（Go atomic 顺序一致，强于所需）
//
// 游标为单调递增 64 位计数器，槽位下标 = cursor & mask，不变式 tail-head <= N。
package spsc

import (
	"sync/atomic"
	"unsafe"
)

const _spscCacheLine = 64

// Ring 单生产者单消费者环形缓冲区
//
// 缓存行布局优化:
//   - Consumer 侧: head + cachedTail（consumer 独占，无 false sharing）
//   - Producer 侧: tail + pending + cachedHead（producer 独占，无 false sharing）
//   - cachedHead/cachedTail 消除常态跨核读: 仅在看似满/空时才重新加载对端游标
type Ring[T any] struct {
	// Consumer 侧: head (consumer 写) + cachedTail (consumer 本地缓存 tail)
	head       atomic.Uint64
	cachedTail uint64
	_          [_spscCacheLine - unsafe.Sizeof(atomic.Uint64{}) - 8]byte

	// Producer 侧: tail (producer 写) + pending (已预留未发布) + cachedHead
	tail       atomic.Uint64
	pending    uint64
	cachedHead uint64
	_          [_spscCacheLine - unsafe.Sizeof(atomic.Uint64{}) - 16]byte

	// 只读（初始化后不变）
	buf  []T
	mask uint64
}

// NewRing 创建 SPSC ring。size 必须为 2 的幂，0 时默认 8192
func NewRing[T any](size uint64) *Ring[T] {
	if size == 0 {
		size = 8192
	}
	if size&(size-1) != 0 {
		panic("spsc.Ring: size must be power of 2")
	}
	return &Ring[T]{
		buf:  make([]T, size),
		mask: size - 1,
	}
}

// Cap 容量
func (r *Ring[T]) Cap() uint64 { return r.mask + 1 }

// Len 已发布未释放的槽位数（任一侧均可调用，结果为近似快照）
func (r *Ring[T]) Len() uint64 { return r.tail.Load() - r.head.Load() }

// ─── Producer ────────────────────────────────────────────────────────

// TryAcquire 预留下一个生产者槽位（不发布）
// 成功当且仅当 pending-head < N；返回的指针在 Publish 前仅生产者可见
//
//go:nosplit
func (r *Ring[T]) TryAcquire() (*T, bool) {
	p := r.pending
	if p-r.cachedHead > r.mask {
		// 本地缓存显示可能满 → 重新读取真实 head
		r.cachedHead = r.head.Load()
		if p-r.cachedHead > r.mask {
			return nil, false // 真的满了
		}
	}
	r.pending = p + 1
	return &r.buf[p&r.mask], true
}

// Reserved 下一个将被预留的游标（已预留槽位之后）
func (r *Ring[T]) Reserved() uint64 { return r.pending }

// Unpublished 已预留未发布的槽位数
func (r *Ring[T]) Unpublished() uint64 { return r.pending - r.tail.Load() }

// Tail 生产者已发布游标
func (r *Ring[T]) Tail() uint64 { return r.tail.Load() }

// Publish 发布至 newTail（release 语义：此前所有槽位写入先于游标可见）
// newTail 不得超过已预留位置
func (r *Ring[T]) Publish(newTail uint64) {
	if newTail > r.pending {
		newTail = r.pending
	}
	r.tail.Store(newTail)
}

// PublishPending 发布全部已预留槽位
func (r *Ring[T]) PublishPending() { r.tail.Store(r.pending) }

// Enqueue 生产者写入单个值并立即发布（单写者，零 CAS）
//
//go:nosplit
func (r *Ring[T]) Enqueue(v T) bool {
	slot, ok := r.TryAcquire()
	if !ok {
		return false
	}
	*slot = v
	r.tail.Store(r.pending) // 发布给消费者
	return true
}

// ─── Consumer ────────────────────────────────────────────────────────

// Peek 返回 (head, tail 快照)；tail 为 acquire 读，保证生产者此前写入可见
//
//go:nosplit
func (r *Ring[T]) Peek() (head, tail uint64) {
	head = r.head.Load()
	if head == r.cachedTail {
		r.cachedTail = r.tail.Load()
	}
	return head, r.cachedTail
}

// Slot 返回游标对应槽位
//
//go:nosplit
func (r *Ring[T]) Slot(cursor uint64) *T { return &r.buf[cursor&r.mask] }

// Advance 释放槽位至 newHead（release 语义）
func (r *Ring[T]) Advance(newHead uint64) { r.head.Store(newHead) }

// Dequeue 消费者读取单个值（单读者，零 CAS）
//
//go:nosplit
func (r *Ring[T]) Dequeue() (T, bool) {
	var zero T
	head, tail := r.Peek()
	if head == tail {
		return zero, false // 真的空了
	}
	v := r.buf[head&r.mask]
	r.buf[head&r.mask] = zero // help GC
	r.head.Store(head + 1)    // 释放槽位
	return v, true
}
