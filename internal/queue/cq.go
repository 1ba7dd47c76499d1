package queue

import (
	"time"

	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/internal/support/sched"
	"github.com/uniyakcom/uring/internal/support/spsc"
)

// CQ 完成队列
//
// 消费者侧在 ring 的 head 之外维护本地 seen 游标：TryPoll 推进 seen，
// Ack 标记槽位并在连续已确认前缀上推进 head（允许乱序确认）。
type CQ struct {
	ring *spsc.Ring[core.Completion]

	// Consumer 本地状态（仅调用方访问）
	head  uint64
	seen  uint64
	acked []bool

	// 消费者阻塞等待时由生产者唤醒
	parker *sched.Parker

	// 每释放 n 个槽位回调一次（引擎归还完成额度）
	onRelease func(n int)
}

// NewCQ 创建完成队列
func NewCQ(entries uint64, onRelease func(n int)) *CQ {
	r := spsc.NewRing[core.Completion](entries)
	if onRelease == nil {
		onRelease = func(int) {}
	}
	return &CQ{
		ring:      r,
		acked:     make([]bool, r.Cap()),
		parker:    sched.NewParker(),
		onRelease: onRelease,
	}
}

// Cap 容量
func (q *CQ) Cap() int { return int(q.ring.Cap()) }

// Len 已发布未确认的完成数
func (q *CQ) Len() int { return int(q.ring.Len()) }

// ─── Producer（唯一的完成写入者） ────────────────────────────────────

// Stage 写入一个完成但暂不发布；满时返回 false（额度机制保证正常情况下不会发生）
func (q *CQ) Stage(c core.Completion) bool {
	seq := q.ring.Reserved()
	slot, ok := q.ring.TryAcquire()
	if !ok {
		return false
	}
	*slot = c
	slot.Seq = seq
	return true
}

// Flush 发布所有已写入的完成，并唤醒阻塞的消费者
func (q *CQ) Flush() {
	if q.ring.Unpublished() == 0 {
		return
	}
	q.ring.PublishPending()
	q.parker.Unpark()
}

// Post 写入并立即发布一个完成
func (q *CQ) Post(c core.Completion) bool {
	if !q.Stage(c) {
		return false
	}
	q.Flush()
	return true
}

// ─── Consumer（调用方） ──────────────────────────────────────────────

// TryPoll 返回下一个未观察的完成（槽位瞬时视图，Ack 前有效）
func (q *CQ) TryPoll() (*core.Completion, bool) {
	if q.seen == q.ring.Tail() {
		return nil, false
	}
	c := q.ring.Slot(q.seen)
	q.seen++
	return c, true
}

// Ack 确认一个完成；head 在连续已确认前缀上推进
func (q *CQ) Ack(c *core.Completion) {
	if c == nil || c.Seq < q.head || c.Seq >= q.seen {
		return
	}
	q.acked[c.Seq&(q.ring.Cap()-1)] = true
	q.release()
}

// AckTag 确认最早一个已观察未确认、标签为 tag 的完成
func (q *CQ) AckTag(tag uint64) bool {
	mask := q.ring.Cap() - 1
	for cur := q.head; cur < q.seen; cur++ {
		if q.acked[cur&mask] {
			continue
		}
		if c := q.ring.Slot(cur); c.Tag == tag {
			q.Ack(c)
			return true
		}
	}
	return false
}

// Advance 确认最早的 n 个已观察未确认完成，返回实际确认数
func (q *CQ) Advance(n int) int {
	mask := q.ring.Cap() - 1
	done := 0
	for cur := q.head; cur < q.seen && done < n; cur++ {
		if !q.acked[cur&mask] {
			q.acked[cur&mask] = true
			done++
		}
	}
	q.release()
	return done
}

// Unacked 已观察未确认的数量
func (q *CQ) Unacked() int {
	mask := q.ring.Cap() - 1
	n := 0
	for cur := q.head; cur < q.seen; cur++ {
		if !q.acked[cur&mask] {
			n++
		}
	}
	return n
}

func (q *CQ) release() {
	mask := q.ring.Cap() - 1
	h := q.head
	for h < q.seen && q.acked[h&mask] {
		q.acked[h&mask] = false
		h++
	}
	if h == q.head {
		return
	}
	n := int(h - q.head)
	q.head = h
	q.ring.Advance(h)
	q.onRelease(n)
}

// Ready 已发布未观察的完成数
func (q *CQ) Ready() int { return int(q.ring.Tail() - q.seen) }

// Wait 等待下一个完成；仅在 TryPoll 无结果时阻塞（一次边界穿越）
// done 关闭时返回 core.ErrClosed。crossed 报告是否真正阻塞过
func (q *CQ) Wait(timeout time.Duration, done <-chan struct{}) (c *core.Completion, crossed bool, err error) {
	crossed, err = q.WaitMin(1, timeout, done)
	if err != nil {
		return nil, crossed, err
	}
	c, _ = q.TryPoll()
	return c, crossed, nil
}

// WaitMin 在一次阻塞调用内等待至少 min 个可观察完成（min 超过容量时按容量计）
// timeout <= 0 表示无限等待
func (q *CQ) WaitMin(min int, timeout time.Duration, done <-chan struct{}) (crossed bool, err error) {
	if min > q.Cap() {
		min = q.Cap()
	}
	if q.Ready() >= min {
		return false, nil
	}
	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}
	crossed = true
	for {
		q.parker.Prepare()
		// 声明泊车后重新检查，避免丢失唤醒
		if q.Ready() >= min {
			q.parker.Cancel()
			return crossed, nil
		}
		select {
		case <-q.parker.C():
			q.parker.Cancel()
		case <-expire:
			q.parker.Cancel()
			if q.Ready() >= min {
				return crossed, nil
			}
			return crossed, core.ErrTimedOut
		case <-done:
			q.parker.Cancel()
			if q.Ready() >= min {
				return crossed, nil
			}
			return crossed, core.ErrClosed
		}
	}
}
