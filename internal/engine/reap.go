package engine

import (
	"context"
	"time"

	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/internal/support/sched"
)

// ─── 完成额度 ────────────────────────────────────────────────────────

// takeCredits 原子地预留 n 个额度，不足时不预留
func (e *Engine) takeCredits(n int64) bool {
	for {
		cur := e.credits.Load()
		if cur < n {
			return false
		}
		if e.credits.CompareAndSwap(cur, cur-n) {
			return true
		}
	}
}

// returnCredits 确认释放完成队列槽位时归还额度，并唤醒等待额度的 multishot
func (e *Engine) returnCredits(n int) {
	e.credits.Add(int64(n))
	if e.creditWaiters.Load() == 0 {
		return
	}
	e.cmu.Lock()
	if e.creditCh != nil {
		close(e.creditCh)
		e.creditCh = nil
	}
	e.cmu.Unlock()
}

// waitCredit 为一次 multishot 重新武装等待一个额度；任务被取消时返回错误
func (e *Engine) waitCredit(t *task) error {
	for {
		if e.takeCredits(1) {
			return nil
		}
		e.cmu.Lock()
		if e.creditCh == nil {
			e.creditCh = make(chan struct{})
		}
		ch := e.creditCh
		e.creditWaiters.Add(1)
		e.cmu.Unlock()

		// 登记后重新检查，避免与 returnCredits 错过
		if e.takeCredits(1) {
			e.creditWaiters.Add(-1)
			return nil
		}
		select {
		case <-ch:
			e.creditWaiters.Add(-1)
		case <-t.runCtx().Done():
			e.creditWaiters.Add(-1)
			return context.Canceled
		}
	}
}

// ─── 收割（完成队列唯一写入者） ──────────────────────────────────────

// post 任何来源的完成都先进入汇聚 channel；额度保证发送不会阻塞
func (e *Engine) post(c core.Completion) {
	e.reap <- c
}

func (e *Engine) stage(c core.Completion) {
	if !e.cq.Stage(c) {
		// 额度机制下不可达
		e.log.Error("uring: completion queue overflow", "tag", c.Tag, "res", c.Res)
		return
	}
	e.completed.Add(1)
}

// reapAvailable 非阻塞地把汇聚 channel 中的完成写入完成队列并一次发布
func (e *Engine) reapAvailable() int {
	n := 0
loop:
	for n < e.cq.Cap() {
		select {
		case c := <-e.reap:
			e.stage(c)
			n++
		default:
			break loop
		}
	}
	e.cq.Flush()
	return n
}

// deliver 写入一个已从汇聚 channel 取出的完成，并顺带收割其余
func (e *Engine) deliver(c core.Completion) {
	e.stage(c)
	e.reapAvailable()
}

// waitReaping OnDemand：调用方兼任收割者，阻塞等待（InterruptWait）直到至少 min 个完成
func (e *Engine) waitReaping(min int, timeout time.Duration) error {
	e.reapAvailable()
	if e.cq.Ready() >= min {
		return nil
	}

	e.crossings.Add(1)
	e.poller.SetState(core.StateInterruptWait)
	defer e.poller.SetState(core.StateIdle)

	if e.pollable != nil {
		return e.pollReaping(min, timeout)
	}

	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}
	for e.cq.Ready() < min {
		select {
		case c := <-e.reap:
			e.deliver(c)
		case <-expire:
			e.reapAvailable()
			if e.cq.Ready() >= min {
				return nil
			}
			return core.ErrTimedOut
		case <-e.done:
			e.reapAvailable()
			if e.cq.Ready() >= min {
				return nil
			}
			return core.ErrClosed
		}
	}
	return nil
}

// pollReaping 设备轮询后端：完成需要主动推进，等待期间持续轮询
func (e *Engine) pollReaping(min int, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	idler := sched.NewIdler(e.cfg.BusySpin)
	for {
		if e.pollable.PollOnce()+e.reapAvailable() > 0 {
			idler.Reset()
		} else {
			idler.Idle()
		}
		if e.cq.Ready() >= min {
			return nil
		}
		if e.closed.Load() {
			return core.ErrClosed
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return core.ErrTimedOut
		}
	}
}
