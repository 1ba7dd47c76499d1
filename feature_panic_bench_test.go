package uring

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/uniyakcom/uring/backend/mem"
	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/middleware/recoverer"
)

const opPanic = core.Opcode(200)

func panicDevice() *mem.Device {
	dev := mem.New()
	dev.Handle(opPanic, func(context.Context, *core.Request) int32 { panic("device fault") })
	return dev
}

// TestFeaturePanicIsolated 执行器 panic 转为 ResIO，环继续可用
func TestFeaturePanicIsolated(t *testing.T) {
	r := newOnDemand(t, panicDevice())

	ops := []Op{{Opcode: opPanic, Tag: 1}, {Opcode: core.OpNop, Tag: 2}}
	SubmitOps(r, ops...)
	got := byTag(mustCollect(t, r, 2))
	if got[1].Res != core.ResIO {
		t.Errorf("panicking op res = %d, want ResIO", got[1].Res)
	}
	if got[2].Res != 0 {
		t.Errorf("nop res = %d", got[2].Res)
	}
	if st := r.Stats(); st.Panics != 1 {
		t.Errorf("panics = %d, want 1", st.Panics)
	}
}

// TestFeatureRecovererMiddleware 中间件先于引擎捕获 panic
func TestFeatureRecovererMiddleware(t *testing.T) {
	var caught atomic.Int32
	mw := recoverer.New(func(pe *recoverer.PanicError) {
		if pe.Tag == 9 {
			caught.Add(1)
		}
	})
	r, err := Option(&Profile{Conc: 8}, panicDevice(), mw)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	SubmitOps(r, Op{Opcode: opPanic, Tag: 9})
	if c := mustCollect(t, r, 1)[0]; c.Res != core.ResIO {
		t.Errorf("res = %d, want ResIO", c.Res)
	}
	if caught.Load() != 1 {
		t.Errorf("onPanic called %d times", caught.Load())
	}
	if st := r.Stats(); st.Panics != 0 {
		t.Errorf("engine panics = %d, middleware should have recovered", st.Panics)
	}
}

// BenchmarkPanicPath panic 路径开销（引擎兜底 vs 中间件）
func BenchmarkPanicPath(b *testing.B) {
	run := func(b *testing.B, mws ...Middleware) {
		r, err := Option(&Profile{Conc: 64, Workers: -1}, panicDevice(), mws...)
		if err != nil {
			b.Fatal(err)
		}
		defer r.Close()
		op := Op{Opcode: opPanic}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			op.Tag = uint64(i)
			SubmitOps(r, op)
			c, err := r.Wait(time.Second)
			if err != nil {
				b.Fatal(err)
			}
			r.Ack(c)
		}
	}
	b.Run("Engine", func(b *testing.B) { run(b) })
	b.Run("Recoverer", func(b *testing.B) { run(b, recoverer.New(nil)) })
}
