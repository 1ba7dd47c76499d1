package uring

import (
	"errors"
	"testing"
	"time"

	"github.com/uniyakcom/uring/backend/mem"
	"github.com/uniyakcom/uring/core"
)

func newOnDemand(t *testing.T, dev *mem.Device) *Engine {
	t.Helper()
	r, err := Option(&Profile{SQEntries: 16}, dev)
	if err != nil {
		t.Fatalf("Option failed: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

// TestEdgeCaseEmptyCommit 空批次不产生任何完成
func TestEdgeCaseEmptyCommit(t *testing.T) {
	r := newOnDemand(t, mem.New())
	if n := r.Commit(0); n != 0 {
		t.Errorf("Commit(0) = %d", n)
	}
	if err := r.Notify(); err != nil {
		t.Errorf("Notify on empty ring: %v", err)
	}
	if _, ok := r.TryPoll(); ok {
		t.Error("TryPoll on empty ring returned a completion")
	}
}

// TestEdgeCaseCommitMoreThanAcquired 只发布已获取的槽位
func TestEdgeCaseCommitMoreThanAcquired(t *testing.T) {
	r := newOnDemand(t, mem.New())
	for i := 0; i < 2; i++ {
		op, err := r.Acquire()
		if err != nil {
			t.Fatal(err)
		}
		core.PrepNop(op, uint64(i))
	}
	if n := r.Commit(5); n != 2 {
		t.Fatalf("Commit(5) = %d, want 2", n)
	}
	r.Notify()
	mustCollect(t, r, 2)
}

// TestEdgeCasePartialCommit 未发布的槽位留给下一次 Commit
func TestEdgeCasePartialCommit(t *testing.T) {
	r := newOnDemand(t, mem.New())
	for i := 0; i < 3; i++ {
		op, _ := r.Acquire()
		core.PrepNop(op, uint64(i))
	}
	r.Commit(1)
	r.Notify()
	if c := mustCollect(t, r, 1)[0]; c.Tag != 0 {
		t.Errorf("first completion tag = %d, want 0", c.Tag)
	}
	r.Commit(2)
	r.Notify()
	got := byTag(mustCollect(t, r, 2))
	if _, ok := got[1]; !ok {
		t.Error("tag 1 missing")
	}
	if _, ok := got[2]; !ok {
		t.Error("tag 2 missing")
	}
}

// TestEdgeCaseWaitTimeout 空完成队列上等待超时
func TestEdgeCaseWaitTimeout(t *testing.T) {
	r := newOnDemand(t, mem.New())
	start := time.Now()
	_, err := r.Wait(20 * time.Millisecond)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("err = %v, want ErrTimedOut", err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Error("Wait returned before timeout")
	}
}

// TestEdgeCaseZeroLengthRead 零长度读完成 0
func TestEdgeCaseZeroLengthRead(t *testing.T) {
	dev := mem.New()
	fd := int32(dev.CreateFile([]byte("data")))
	r := newOnDemand(t, dev)
	var op Op
	core.PrepRead(&op, fd, nil, 0, 1)
	SubmitOps(r, op)
	if c := mustCollect(t, r, 1)[0]; c.Res != 0 {
		t.Errorf("res = %d, want 0", c.Res)
	}
}

// TestEdgeCaseDuplicateTags 标签不要求唯一，每个提交各自完成一次
func TestEdgeCaseDuplicateTags(t *testing.T) {
	r := newOnDemand(t, mem.New())
	ops := make([]Op, 3)
	for i := range ops {
		core.PrepNop(&ops[i], 7)
	}
	SubmitOps(r, ops...)
	for _, c := range mustCollect(t, r, 3) {
		if c.Tag != 7 {
			t.Errorf("tag = %d, want 7", c.Tag)
		}
	}
}

// TestEdgeCaseOutOfOrderAck 乱序确认后槽位全部归还
func TestEdgeCaseOutOfOrderAck(t *testing.T) {
	r, err := Option(&Profile{SQEntries: 8, CQEntries: 8}, mem.New())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ops := make([]Op, 8)
	for i := range ops {
		core.PrepNop(&ops[i], uint64(i))
	}
	SubmitOps(r, ops...)
	n, err := r.WaitMin(8, time.Second)
	if err != nil || n != 8 {
		t.Fatalf("WaitMin = %d, %v", n, err)
	}
	held := make([]*Completion, 0, 8)
	for i := 0; i < 8; i++ {
		c, ok := r.TryPoll()
		if !ok {
			t.Fatalf("TryPoll %d empty", i)
		}
		held = append(held, c)
	}
	for i := len(held) - 1; i >= 0; i-- {
		r.Ack(held[i])
	}
	if st := r.Stats(); st.CQDepth != 0 {
		t.Fatalf("cq depth = %d after acking all", st.CQDepth)
	}

	// 额度全部归还：下一批可以完整分发
	SubmitOps(r, ops...)
	mustCollect(t, r, 8)
}

// TestEdgeCaseAckTag 按标签确认
func TestEdgeCaseAckTag(t *testing.T) {
	r := newOnDemand(t, mem.New())
	var op Op
	core.PrepNop(&op, 5)
	SubmitOps(r, op)
	if _, err := r.WaitMin(1, time.Second); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.TryPoll(); !ok {
		t.Fatal("no completion")
	}
	if r.AckTag(999) {
		t.Error("AckTag(999) should not match")
	}
	if !r.AckTag(5) {
		t.Error("AckTag(5) should match")
	}
	if r.AckTag(5) {
		t.Error("AckTag(5) twice should not match")
	}
}

// TestEdgeCaseUnregisterTwice 重复注销返回 ErrInvalidResource
func TestEdgeCaseUnregisterTwice(t *testing.T) {
	r := newOnDemand(t, mem.New())
	id, err := r.Register(3, core.KindSocket)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Unregister(id); err != nil {
		t.Fatal(err)
	}
	if err := r.Unregister(id); !errors.Is(err, ErrInvalidResource) {
		t.Errorf("err = %v, want ErrInvalidResource", err)
	}
	// 复用槽位的新 id 与旧 id 不同
	id2, _ := r.Register(4, core.KindSocket)
	if id2 == id {
		t.Error("stale id reused verbatim")
	}
}

// TestEdgeCaseProvideBufferGroupInvalid 非法尺寸被拒绝
func TestEdgeCaseProvideBufferGroupInvalid(t *testing.T) {
	r := newOnDemand(t, mem.New())
	if err := r.ProvideBufferGroup(1, 0, 16); err == nil {
		t.Error("count=0 should fail")
	}
	if err := r.ProvideBufferGroup(1, 4, -1); err == nil {
		t.Error("size<0 should fail")
	}
	var ee *core.ExecutionError
	if err := r.ProvideBufferGroup(1, 4, 0); !errors.As(err, &ee) || ee.Res != core.ResInvalid {
		t.Errorf("err = %v, want ExecutionError(ResInvalid)", err)
	}
}

// TestEdgeCaseUseAfterClose 关闭后提交与通知返回 ErrClosed
func TestEdgeCaseUseAfterClose(t *testing.T) {
	r, err := ForOnDemand(mem.New())
	if err != nil {
		t.Fatal(err)
	}
	r.Close()
	r.Close() // 重复关闭无副作用

	if _, err := r.Acquire(); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire err = %v", err)
	}
	if _, err := r.Submit(Op{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit err = %v", err)
	}
	if err := r.Notify(); !errors.Is(err, ErrClosed) {
		t.Errorf("Notify err = %v", err)
	}
	if err := r.GracefulClose(time.Second); err != nil {
		t.Errorf("GracefulClose after Close: %v", err)
	}
}

// TestEdgeCaseGracefulCloseTimeout 阻塞操作超过期限时返回 ErrTimedOut 并强制关闭
func TestEdgeCaseGracefulCloseTimeout(t *testing.T) {
	dev := mem.New()
	_, b := dev.Pipe()
	r, err := ForOnDemand(dev)
	if err != nil {
		t.Fatal(err)
	}
	var op Op
	core.PrepRecv(&op, int32(b), make([]byte, 4), 1)
	SubmitOps(r, op)

	err = r.GracefulClose(30 * time.Millisecond)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("err = %v, want ErrTimedOut", err)
	}
	if st := r.Stats(); st.Inflight != 0 {
		t.Errorf("inflight = %d after forced close", st.Inflight)
	}
}
