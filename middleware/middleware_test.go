package middleware_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/middleware/correlation"
	"github.com/uniyakcom/uring/middleware/logging"
	"github.com/uniyakcom/uring/middleware/recoverer"
	"github.com/uniyakcom/uring/middleware/retry"
	"github.com/uniyakcom/uring/middleware/timeout"
)

func request(opcode core.Opcode, tag uint64) *core.Request {
	return &core.Request{Op: &core.Op{Opcode: opcode, Tag: tag}}
}

func TestRetryMiddleware(t *testing.T) {
	var attempts int

	mw := retry.New(retry.Config{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
	})

	exec := mw(core.ExecutorFunc(func(context.Context, *core.Request) int32 {
		attempts++
		if attempts < 3 {
			return core.ResAgain
		}
		return 8
	}))

	if res := exec.Execute(context.Background(), request(core.OpRead, 1)); res != 8 {
		t.Errorf("res = %d, want 8", res)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhausted(t *testing.T) {
	mw := retry.New(retry.Config{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
	})

	var attempts int
	exec := mw(core.ExecutorFunc(func(context.Context, *core.Request) int32 {
		attempts++
		return core.ResAgain
	}))

	if res := exec.Execute(context.Background(), request(core.OpRead, 1)); res != core.ResAgain {
		t.Errorf("res = %d, want ResAgain", res)
	}
	if attempts != 3 { // 1 次执行 + 2 次重试
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryOnlyTransient(t *testing.T) {
	mw := retry.New(retry.Config{MaxRetries: 3, InitialInterval: time.Millisecond})

	var attempts int
	exec := mw(core.ExecutorFunc(func(context.Context, *core.Request) int32 {
		attempts++
		return core.ResIO
	}))

	if res := exec.Execute(context.Background(), request(core.OpRead, 1)); res != core.ResIO {
		t.Errorf("res = %d, want ResIO", res)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (should not retry)", attempts)
	}
}

func TestRetryCanceled(t *testing.T) {
	mw := retry.New(retry.Config{MaxRetries: 10, InitialInterval: time.Hour})
	exec := mw(core.ExecutorFunc(func(context.Context, *core.Request) int32 { return core.ResAgain }))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if res := exec.Execute(ctx, request(core.OpRecv, 1)); res != core.ResCanceled {
		t.Errorf("res = %d, want ResCanceled", res)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	mw := timeout.New(20 * time.Millisecond)

	exec := mw(core.ExecutorFunc(func(ctx context.Context, _ *core.Request) int32 {
		select {
		case <-ctx.Done():
			return core.ResCanceled
		case <-time.After(time.Second):
			return 1
		}
	}))

	if res := exec.Execute(context.Background(), request(core.OpRecv, 1)); res != core.ResTimerExpired {
		t.Errorf("res = %d, want ResTimerExpired", res)
	}
}

func TestTimeoutStrict(t *testing.T) {
	mw := timeout.NewWithConfig(timeout.Config{Timeout: 5 * time.Millisecond, Strict: true})
	exec := mw(core.ExecutorFunc(func(context.Context, *core.Request) int32 {
		time.Sleep(20 * time.Millisecond)
		return 4
	}))
	if res := exec.Execute(context.Background(), request(core.OpRead, 1)); res != core.ResTimerExpired {
		t.Errorf("res = %d, want ResTimerExpired", res)
	}

	fast := mw(core.ExecutorFunc(func(context.Context, *core.Request) int32 { return 4 }))
	if res := fast.Execute(context.Background(), request(core.OpRead, 2)); res != 4 {
		t.Errorf("res = %d, want 4", res)
	}
}

func TestRecovererMiddleware(t *testing.T) {
	var got *recoverer.PanicError
	mw := recoverer.New(func(pe *recoverer.PanicError) { got = pe })

	exec := mw(core.ExecutorFunc(func(context.Context, *core.Request) int32 {
		panic("test panic")
	}))

	if res := exec.Execute(context.Background(), request(core.OpWrite, 7)); res != core.ResIO {
		t.Fatalf("res = %d, want ResIO", res)
	}
	if got == nil {
		t.Fatal("onPanic not called")
	}
	if got.Value != "test panic" || got.Tag != 7 || got.Op != core.OpWrite {
		t.Errorf("unexpected panic error: %v", got)
	}
}

func TestCorrelationMiddleware(t *testing.T) {
	mw := correlation.New()

	t.Run("uses tag if missing", func(t *testing.T) {
		var id uint64
		var ok bool
		exec := mw(core.ExecutorFunc(func(ctx context.Context, _ *core.Request) int32 {
			id, ok = correlation.FromContext(ctx)
			return 0
		}))
		exec.Execute(context.Background(), request(core.OpNop, 42))
		if !ok || id != 42 {
			t.Errorf("correlation id = %d, %v; want 42", id, ok)
		}
	})

	t.Run("preserves existing ID", func(t *testing.T) {
		var id uint64
		exec := mw(core.ExecutorFunc(func(ctx context.Context, _ *core.Request) int32 {
			id, _ = correlation.FromContext(ctx)
			return 0
		}))
		exec.Execute(correlation.WithID(context.Background(), 9), request(core.OpNop, 42))
		if id != 9 {
			t.Errorf("correlation id = %d, want 9", id)
		}
	})
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	exec := core.Chain(core.ExecutorFunc(func(_ context.Context, req *core.Request) int32 {
		if req.Op.Tag == 2 {
			return core.ResIO
		}
		return 3
	}), correlation.New(), logging.New(logger))

	exec.Execute(context.Background(), request(core.OpRead, 1))
	exec.Execute(context.Background(), request(core.OpRead, 2))

	out := buf.String()
	if !strings.Contains(out, "operation completed") || !strings.Contains(out, "correlation_id=1") {
		t.Errorf("missing debug line: %s", out)
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "res=-5") {
		t.Errorf("missing error line: %s", out)
	}
}

func TestMiddlewareChaining(t *testing.T) {
	var order []string

	mw := func(name string) core.Middleware {
		return func(next core.Executor) core.Executor {
			return core.ExecutorFunc(func(ctx context.Context, req *core.Request) int32 {
				order = append(order, name+"-before")
				res := next.Execute(ctx, req)
				order = append(order, name+"-after")
				return res
			})
		}
	}

	exec := core.Chain(core.ExecutorFunc(func(context.Context, *core.Request) int32 {
		order = append(order, "executor")
		return 0
	}), mw("mw1"), mw("mw2"))

	exec.Execute(context.Background(), request(core.OpNop, 1))

	// 洋葱模型: mw1 包裹 mw2 包裹执行器
	expected := []string{"mw1-before", "mw2-before", "executor", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("order length = %d, want %d: %v", len(order), len(expected), order)
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("order[%d] = %q, want %q", i, order[i], v)
		}
	}
}
