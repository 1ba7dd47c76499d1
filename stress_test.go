package uring

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/uniyakcom/uring/backend/mem"
	"github.com/uniyakcom/uring/core"
)

// 说明：压力测试需要较长运行时间，使用 -short 标志可跳过

// TestStressSharedSubmit 多生产者持续提交读 / nop / 链，单消费者收割
// 校验每个标签恰好完成一次，且结束后无在途操作
func TestStressSharedSubmit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	for _, mode := range []core.Mode{core.ModeOnDemand, core.ModeQueuePoll, core.ModeHybrid} {
		t.Run(mode.String(), func(t *testing.T) {
			dev := mem.New()
			fd := int32(dev.CreateFile(make([]byte, 1<<16)))
			r, err := Option(&Profile{Mode: mode, SQEntries: 256, Shared: true, IdleTimeout: 5 * time.Millisecond}, dev)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()

			producers := runtime.GOMAXPROCS(0)
			const perProducer = 2000
			total := producers * perProducer

			var submitted atomic.Int64
			var wg sync.WaitGroup
			start := time.Now()
			for p := 0; p < producers; p++ {
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					buf := make([]byte, 32)
					for i := 0; i < perProducer; {
						tag := uint64(p*perProducer + i)
						var op Op
						switch i % 3 {
						case 0:
							core.PrepNop(&op, tag)
						default:
							core.PrepRead(&op, fd, buf, uint64(i%1024)*32, tag)
						}
						_, err := SubmitOps(r, op)
						if errors.Is(err, ErrFull) {
							runtime.Gosched()
							continue
						}
						if err != nil {
							t.Errorf("producer %d: %v", p, err)
							return
						}
						submitted.Add(1)
						i++
					}
				}(p)
			}

			seen := make([]uint8, total)
			for got := 0; got < total; got++ {
				c, err := r.Wait(5 * time.Second)
				if err != nil {
					t.Fatalf("Wait after %d/%d completions (submitted %d): %v", got, total, submitted.Load(), err)
				}
				if c.Res < 0 {
					t.Errorf("tag %d res = %d", c.Tag, c.Res)
				}
				seen[c.Tag]++
				r.Ack(c)
			}
			wg.Wait()
			duration := time.Since(start)

			for tag, n := range seen {
				if n != 1 {
					t.Fatalf("tag %d completed %d times", tag, n)
				}
			}
			st := r.Stats()
			if st.Inflight != 0 || st.Submitted != int64(total) {
				t.Errorf("stats after run: %+v", st)
			}
			t.Logf("%s: %d ops in %v (%.0f ops/sec), crossings=%d backpressure=%d",
				mode, total, duration, float64(total)/duration.Seconds(), st.Crossings, st.Backpressure)
		})
	}
}

// TestStressCancelStorm 大量 multishot 与取消交错，不泄漏在途操作
func TestStressCancelStorm(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	dev := mem.New()
	r, err := Option(&Profile{SQEntries: 128}, dev)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for round := 0; round < 50; round++ {
		l := dev.Listen()
		base := uint64(round * 10)
		var op Op
		core.PrepAccept(&op, int32(l), true, base)
		SubmitOps(r, op)
		for i := 0; i < 3; i++ {
			if _, err := dev.Dial(l); err != nil {
				t.Fatal(err)
			}
		}
		op.Reset()
		core.PrepCancel(&op, base, base+1)
		SubmitOps(r, op)

		// 取消与 accept 竞争：accept 完成数不定，但最终恰好一个不带 More
		finals, cancels := 0, 0
		for finals == 0 || cancels == 0 {
			c, err := r.Wait(2 * time.Second)
			if err != nil {
				t.Fatalf("round %d: %v", round, err)
			}
			switch {
			case c.Tag == base+1:
				cancels++
			case c.Tag == base && !c.More():
				finals++
			}
			r.Ack(c)
		}
		dev.Close(l)
	}
	if _, err := r.Wait(20 * time.Millisecond); !errors.Is(err, ErrTimedOut) {
		t.Errorf("unexpected trailing completion or error: %v", err)
	}
	if st := r.Stats(); st.Inflight != 0 {
		t.Errorf("inflight = %d", st.Inflight)
	}
}
