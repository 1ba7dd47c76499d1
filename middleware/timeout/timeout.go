// Package timeout 提供单操作执行超时中间件。
//
// 在执行 context 上设置截止时间；执行器观察 ctx.Done() 提前返回。
// 执行器在截止后仍返回非负结果时，按 Config.Strict 决定是否改写为 ResTimerExpired。
//
//	cfg.Middlewares = append(cfg.Middlewares, timeout.New(50*time.Millisecond))
package timeout

import (
	"context"
	"time"

	"github.com/uniyakcom/uring/core"
)

// Config 超时中间件配置
type Config struct {
	// Timeout 单操作超时（必填，<=0 时中间件不生效）
	Timeout time.Duration

	// Strict 截止后返回的任何结果都改写为 ResTimerExpired
	Strict bool
}

// New 创建超时中间件（非严格模式）。
func New(d time.Duration) core.Middleware {
	return NewWithConfig(Config{Timeout: d})
}

// NewWithConfig 创建带配置的超时中间件。
func NewWithConfig(cfg Config) core.Middleware {
	return func(next core.Executor) core.Executor {
		if cfg.Timeout <= 0 {
			return next
		}
		return core.ExecutorFunc(func(ctx context.Context, req *core.Request) int32 {
			tctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()

			res := next.Execute(tctx, req)
			if tctx.Err() == context.DeadlineExceeded && (cfg.Strict || res == core.ResCanceled) {
				return core.ResTimerExpired
			}
			return res
		})
	}
}
