// Package retry 提供操作失败重试中间件。
//
// 默认只重试 ResAgain；支持指数退避、最大重试次数、自定义判断函数。
// 退避等待可被操作取消打断。
//
//	cfg.Middlewares = append(cfg.Middlewares, retry.New(retry.Config{
//	    MaxRetries:      3,
//	    InitialInterval: time.Millisecond,
//	}))
package retry

import (
	"context"
	"time"

	"github.com/uniyakcom/uring/core"
)

// Config 重试配置
type Config struct {
	// MaxRetries 最大重试次数（不含首次执行）。默认 3。
	MaxRetries int

	// InitialInterval 首次重试间隔。默认 1ms。
	InitialInterval time.Duration

	// MaxInterval 最大重试间隔（指数退避上限）。默认 100ms。
	MaxInterval time.Duration

	// Multiplier 退避乘数。默认 2.0。
	Multiplier float64

	// ShouldRetry 自定义是否重试。为 nil 时仅重试 ResAgain。
	ShouldRetry func(res int32) bool
}

func (c *Config) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 100 * time.Millisecond
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = func(res int32) bool { return res == core.ResAgain }
	}
}

// New 创建重试中间件。
func New(cfg Config) core.Middleware {
	cfg.defaults()

	return func(next core.Executor) core.Executor {
		return core.ExecutorFunc(func(ctx context.Context, req *core.Request) int32 {
			interval := cfg.InitialInterval

			for attempt := 0; ; attempt++ {
				res := next.Execute(ctx, req)
				if res >= 0 || attempt >= cfg.MaxRetries || !cfg.ShouldRetry(res) {
					return res
				}

				t := time.NewTimer(interval)
				select {
				case <-ctx.Done():
					t.Stop()
					return core.ResCanceled
				case <-t.C:
				}

				// 指数退避
				interval = time.Duration(float64(interval) * cfg.Multiplier)
				if interval > cfg.MaxInterval {
					interval = cfg.MaxInterval
				}
			}
		})
	}
}
