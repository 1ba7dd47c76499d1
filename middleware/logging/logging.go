// Package logging 提供操作执行日志中间件。
//
// 记录每个操作的操作码、标签、耗时与结果；结果为负时以 Error 级别输出。
//
//	cfg.Middlewares = append(cfg.Middlewares, logging.New(slog.Default()))
package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/middleware/correlation"
)

// New 创建日志中间件。
func New(logger *slog.Logger) core.Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next core.Executor) core.Executor {
		return core.ExecutorFunc(func(ctx context.Context, req *core.Request) int32 {
			start := time.Now()

			res := next.Execute(ctx, req)

			attrs := []any{
				"opcode", req.Op.Opcode.String(),
				"tag", req.Op.Tag,
				"duration", time.Since(start),
				"res", res,
			}
			if id, ok := correlation.FromContext(ctx); ok {
				attrs = append(attrs, "correlation_id", id)
			}
			if res < 0 {
				logger.Error("operation failed", append(attrs, "error", core.ResultError(res))...)
			} else {
				logger.Debug("operation completed", attrs...)
			}
			return res
		})
	}
}
