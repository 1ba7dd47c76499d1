package engine

import (
	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/internal/registry"
	"github.com/uniyakcom/uring/internal/support/wpool"
)

// ─── 分发 ────────────────────────────────────────────────────────────

// dispatch 排空提交队列，返回本次分发的描述符数
//
// 每个描述符（链中每个成员）在分发前预留一个完成额度；额度不足时停止，
// 剩余描述符留在提交队列中等待确认释放额度（背压）。
func (e *Engine) dispatch() int {
	e.dmu.Lock()
	defer e.dmu.Unlock()

	head, tail := e.sq.Peek()
	start := head
	for head < tail {
		// 链：连续携带 FlagLink 的成员 + 第一个不带的成员；批次末尾截断
		end := head
		for end < tail-1 && e.sq.Slot(end).Flags.Has(core.FlagLink) {
			end++
		}
		k := end - head + 1
		if !e.takeCredits(int64(k)) {
			e.backpressure.Add(1)
			break
		}

		first := getTask(e, e.sq.Slot(head))
		prev := first
		for c := head + 1; c <= end; c++ {
			t := getTask(e, e.sq.Slot(c))
			prev.next = t
			prev = t
		}
		head = end + 1
		e.sq.Advance(head)

		if k == 1 {
			e.start(first)
		} else {
			e.startChain(first)
		}
	}
	n := int(head - start)
	if n > 0 {
		e.dispatched.Add(int64(n))
	}
	return n
}

func isNative(op core.Opcode) bool {
	switch op {
	case core.OpNop, core.OpCancel, core.OpProvideBuffers, core.OpRemoveBuffers:
		return true
	}
	return false
}

// start 启动单个描述符
func (e *Engine) start(t *task) {
	e.inflight.Add(1)
	switch {
	case isNative(t.op.Opcode):
		e.finish(t, e.runNative(t))
	case t.op.Opcode == core.OpTimeout:
		e.track(t)
		e.armTimeout(t)
	case t.op.Multishot():
		e.track(t)
		e.wg.Add(1)
		go e.runMultishot(t)
	default:
		e.track(t)
		e.execute(func() { e.finish(t, e.runOne(t)) })
	}
}

// startChain 启动 LinkChain：全部成员在同一个任务上按序执行
func (e *Engine) startChain(first *task) {
	for t := first; t != nil; t = t.next {
		e.inflight.Add(1)
		e.track(t)
	}
	e.execute(func() { e.runChain(first) })
}

func (e *Engine) runChain(first *task) {
	failed := false
	for t := first; t != nil; {
		next := t.next
		res := core.ResCanceled
		if !failed {
			res = e.runOne(t)
		}
		if res < 0 {
			failed = true
		}
		e.finish(t, res)
		t = next
	}
}

// execute 按放置策略执行：ants 池，或在当前分发 goroutine 上内联
//
// 池满（全部 worker 阻塞在慢操作上）或已关闭时溢出到独立 goroutine，
// 分发者不等待池容量，排在后面的 OpCancel 仍能被分发。
func (e *Engine) execute(fn func()) {
	if e.pool == nil {
		fn()
		return
	}
	err := e.pool.Submit(fn)
	if err == nil {
		return
	}
	if wpool.IsOverload(err) {
		e.overflow.Add(1)
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// runOne 同步执行一个非 multishot 描述符并返回结果
func (e *Engine) runOne(t *task) int32 {
	if t.canceled.Load() {
		return core.ResCanceled
	}
	switch {
	case isNative(t.op.Opcode):
		return e.runNative(t)
	case t.op.Opcode == core.OpTimeout:
		return e.sleepTimeout(t)
	case t.op.Multishot():
		// multishot 不能作为链成员
		return core.ResInvalid
	}
	if res := e.resolve(t); res < 0 {
		return res
	}
	return e.invoke(t)
}

// invoke 调用执行器；panic 转换为 ResIO，保证仍产生一个完成
func (e *Engine) invoke(t *task) (res int32) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.log.Warn("uring: executor panic",
				"opcode", t.op.Opcode.String(), "tag", t.op.Tag, "panic", r)
			res = core.ResIO
		}
	}()
	return e.exec.Execute(t.runCtx(), &t.req)
}

// ─── 引擎原生操作 ────────────────────────────────────────────────────

func (e *Engine) runNative(t *task) int32 {
	op := &t.op
	switch op.Opcode {
	case core.OpCancel:
		return e.cancelTarget(op.Target)
	case core.OpProvideBuffers:
		count, size := int(op.Fd), int(op.Len)
		if count <= 0 || size <= 0 || len(op.Addr) < count*size {
			return core.ResInvalid
		}
		bufs := make([][]byte, count)
		for i := range bufs {
			bufs[i] = op.Addr[i*size : (i+1)*size : (i+1)*size]
		}
		if op.Off >= registry.MaxBIDs {
			return core.ResInvalid
		}
		n, err := e.reg.Provide(op.BufGroup, uint16(op.Off), bufs)
		if err != nil {
			return core.ResInvalid
		}
		return int32(n)
	case core.OpRemoveBuffers:
		if op.Fd <= 0 {
			return core.ResInvalid
		}
		return int32(e.reg.Remove(op.BufGroup, int(op.Fd)))
	}
	return 0
}

// ─── 资源解析 ────────────────────────────────────────────────────────

func (e *Engine) resolve(t *task) int32 {
	if res := e.resolveResources(t); res < 0 {
		return res
	}
	return e.selectBuffer(t)
}

// resolveResources 解析句柄与已注册内存区（持有引用直到完成）
func (e *Engine) resolveResources(t *task) int32 {
	op := &t.op
	t.req.Fd = int(op.Fd)
	t.req.Buf = op.Addr
	if op.Flags.Has(core.FlagFixed) {
		res, err := e.reg.Acquire(uint32(op.Fd))
		if err != nil {
			return core.ResBadResource
		}
		t.fixedID = uint32(op.Fd)
		t.req.Fd, t.req.Kind = res.Handle, res.Kind
	}
	if op.BufIndex != 0 {
		res, err := e.reg.Acquire(op.BufIndex)
		if err != nil {
			return core.ResBadResource
		}
		t.memID = op.BufIndex
		if res.Kind != core.KindBuffer {
			return core.ResBadResource
		}
		t.req.Buf = clip(res.Mem, op.Len)
	}
	return 0
}

// selectBuffer FlagBufferSelect 时从缓冲组取出一个缓冲区
func (e *Engine) selectBuffer(t *task) int32 {
	if !t.op.Flags.Has(core.FlagBufferSelect) {
		return 0
	}
	bid, buf, ok := e.reg.Select(t.op.BufGroup)
	if !ok {
		return core.ResNoBuffers
	}
	t.bufSel, t.bufID, t.buf = true, bid, buf
	t.req.BufID = bid
	t.req.Buf = clip(buf, t.op.Len)
	return 0
}

func clip(b []byte, n uint32) []byte {
	if n > 0 && int(n) < len(b) {
		return b[:n]
	}
	return b
}

// releaseBuffer 结果为负时归还选中的缓冲区，否则在完成标志中携带 bid
func (e *Engine) releaseBuffer(t *task, res int32) core.CQEFlags {
	if !t.bufSel {
		return 0
	}
	t.bufSel = false
	if res < 0 {
		e.reg.Recycle(t.op.BufGroup, t.bufID, t.buf)
		t.buf = nil
		return 0
	}
	t.buf = nil
	return core.CQEBuffer | core.CQEFlags(t.bufID)<<core.CQEBufferShift
}

func (e *Engine) release(t *task, res int32) core.CQEFlags {
	if t.fixedID != 0 {
		e.reg.Release(t.fixedID)
		t.fixedID = 0
	}
	if t.memID != 0 {
		e.reg.Release(t.memID)
		t.memID = 0
	}
	return e.releaseBuffer(t, res)
}

// finish 产生描述符的最终完成并回收任务
func (e *Engine) finish(t *task, res int32) {
	flags := e.release(t, res)
	e.untrack(t)
	e.inflight.Add(-1)
	e.post(core.Completion{Tag: t.op.Tag, Res: res, Flags: flags})
	putTask(t)
}

// ─── Multishot ───────────────────────────────────────────────────────

// runMultishot 在专属 goroutine 上反复执行，每个非负结果以 CQEMore 发布
//
// 分发时预留的额度留给最终完成；每次带 More 的发布另取一个额度。
func (e *Engine) runMultishot(t *task) {
	defer e.wg.Done()
	if res := e.resolveResources(t); res < 0 {
		e.finish(t, res)
		return
	}
	for rearm := uint32(0); ; rearm++ {
		if t.canceled.Load() {
			e.finish(t, core.ResCanceled)
			return
		}
		t.req.Rearm = rearm
		if res := e.selectBuffer(t); res < 0 {
			e.finish(t, res)
			return
		}
		res := e.invoke(t)
		if res < 0 {
			e.finish(t, res)
			return
		}
		// 等待额度期间被拆除：该结果作为最终完成（不带 More）
		if err := e.waitCredit(t); err != nil {
			e.finish(t, res)
			return
		}
		flags := e.releaseBuffer(t, res)
		e.post(core.Completion{Tag: t.op.Tag, Res: res, Flags: flags | core.CQEMore})
	}
}

// ─── 在途表 / 取消 ───────────────────────────────────────────────────

func (e *Engine) track(t *task) {
	e.imu.Lock()
	e.tasks[t.op.Tag] = t
	t.tracked = true
	e.imu.Unlock()
}

func (e *Engine) untrack(t *task) {
	if !t.tracked {
		return
	}
	e.imu.Lock()
	if e.tasks[t.op.Tag] == t {
		delete(e.tasks, t.op.Tag)
	}
	t.tracked = false
	e.imu.Unlock()
}

// cancelTarget 尽力取消：命中时取消操作本身完成 0，目标自行产生唯一的完成
// （ResCanceled 或与取消竞争胜出的自然结果）；未命中返回 ResNotFound
func (e *Engine) cancelTarget(tag uint64) int32 {
	e.imu.Lock()
	t, ok := e.tasks[tag]
	var fire *task
	if ok {
		fire = e.cancelLocked(t)
	}
	e.imu.Unlock()
	if !ok {
		return core.ResNotFound
	}
	if fire != nil {
		fire.timer.Stop()
		e.finish(fire, core.ResCanceled)
	}
	return 0
}

// cancelLocked 调用方持有 imu；返回需要由调用方以 ResCanceled 完成的定时任务
func (e *Engine) cancelLocked(t *task) *task {
	t.cancel()
	if t.timer != nil && t.claim() {
		return t
	}
	return nil
}

// cancelAll 关闭时取消全部在途操作
func (e *Engine) cancelAll() {
	var fire []*task
	e.imu.Lock()
	for _, t := range e.tasks {
		if f := e.cancelLocked(t); f != nil {
			fire = append(fire, f)
		}
	}
	e.imu.Unlock()
	for _, t := range fire {
		t.timer.Stop()
		e.finish(t, core.ResCanceled)
	}
}

// ─── 定时 ────────────────────────────────────────────────────────────

// armTimeout 独立 OpTimeout：到期由时钟回调完成，不占用执行 goroutine
func (e *Engine) armTimeout(t *task) {
	e.imu.Lock()
	t.timer = e.cfg.Clock.AfterFunc(t.op.Timeout, func() { e.expire(t) })
	e.imu.Unlock()
}

func (e *Engine) expire(t *task) {
	e.imu.Lock()
	ok := t.claim()
	e.imu.Unlock()
	if ok {
		e.finish(t, core.ResTimerExpired)
	}
}

// sleepTimeout 链中的 OpTimeout：阻塞当前链直到到期或被取消
func (e *Engine) sleepTimeout(t *task) int32 {
	fired := make(chan struct{})
	tm := e.cfg.Clock.AfterFunc(t.op.Timeout, func() { close(fired) })
	select {
	case <-fired:
		return core.ResTimerExpired
	case <-t.runCtx().Done():
		tm.Stop()
		return core.ResCanceled
	}
}
