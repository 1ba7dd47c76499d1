package uring

import (
	"strconv"
	"testing"
	"time"

	"github.com/uniyakcom/uring/backend/mem"
	"github.com/uniyakcom/uring/core"
)

// ═══════════════════════════════════════════════════════════════════
// 实现基准：提交路径与执行放置
// ═══════════════════════════════════════════════════════════════════

// BenchmarkAcquireCommit 就地填写槽位（零拷贝提交路径）
func BenchmarkAcquireCommit(b *testing.B) {
	r, err := Option(&Profile{SQEntries: 1024, Workers: -1}, mem.New())
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()

	const batch = 64
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := 0; j < batch; j++ {
			op, err := r.Acquire()
			if err != nil {
				b.Fatal(err)
			}
			core.PrepNop(op, uint64(j))
		}
		r.Commit(batch)
		r.Notify()
		if _, err := r.WaitMin(batch, time.Second); err != nil {
			b.Fatal(err)
		}
		for j := 0; j < batch; j++ {
			r.TryPoll()
		}
		r.AckN(batch)
	}
}

// BenchmarkSubmitCopy 复制描述符的提交路径
func BenchmarkSubmitCopy(b *testing.B) {
	r, err := Option(&Profile{SQEntries: 1024, Workers: -1}, mem.New())
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()

	ops := nops(64)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SubmitOps(r, ops...)
		if _, err := r.WaitMin(len(ops), time.Second); err != nil {
			b.Fatal(err)
		}
		for range ops {
			r.TryPoll()
		}
		r.AckN(len(ops))
	}
}

// BenchmarkPlacement 执行器放置：内联 vs ants 池
func BenchmarkPlacement(b *testing.B) {
	dev := mem.New()
	fd := int32(dev.CreateFile(make([]byte, 4096)))
	ops := make([]Op, 32)
	for i := range ops {
		core.PrepRead(&ops[i], fd, make([]byte, 128), uint64(i*128), uint64(i))
	}
	for _, workers := range []int{-1, 4, 0} {
		b.Run("workers="+strconv.Itoa(workers), func(b *testing.B) {
			r, err := Option(&Profile{SQEntries: 64, Workers: workers}, dev)
			if err != nil {
				b.Fatal(err)
			}
			defer r.Close()
			benchBatch(b, r, ops)
		})
	}
}

// BenchmarkLinkChain 链长对分发开销的影响
func BenchmarkLinkChain(b *testing.B) {
	for _, n := range []int{2, 8, 32} {
		b.Run("len="+strconv.Itoa(n), func(b *testing.B) {
			r, err := Option(&Profile{SQEntries: 64}, mem.New())
			if err != nil {
				b.Fatal(err)
			}
			defer r.Close()
			ops := nops(n)
			for i := 0; i < n-1; i++ {
				ops[i].Flags |= core.FlagLink
			}
			benchBatch(b, r, ops)
		})
	}
}
