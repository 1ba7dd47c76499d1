// Package recoverer 提供 panic 恢复中间件。
//
// 捕获执行器内的 panic 并转化为 ResIO 结果，可选回调上报恢复值。
// 引擎自身也会兜底 panic；该中间件用于在内层中间件之前就地处理，
// 使外层中间件（例如 retry、logging）看到的是普通失败结果。
//
//	cfg.Middlewares = []core.Middleware{logging.New(nil), recoverer.New(nil)}
package recoverer

import (
	"context"
	"fmt"

	"github.com/uniyakcom/uring/core"
)

// PanicError 包装 panic 恢复值
type PanicError struct {
	Value any
	Op    core.Opcode
	Tag   uint64
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("executor panic (%s tag=%d): %v", e.Op, e.Tag, e.Value)
}

// New 创建 panic 恢复中间件。onPanic 可为 nil。
func New(onPanic func(*PanicError)) core.Middleware {
	return func(next core.Executor) core.Executor {
		return core.ExecutorFunc(func(ctx context.Context, req *core.Request) (res int32) {
			defer func() {
				if r := recover(); r != nil {
					res = core.ResIO
					if onPanic != nil {
						onPanic(&PanicError{Value: r, Op: req.Op.Opcode, Tag: req.Op.Tag})
					}
				}
			}()
			return next.Execute(ctx, req)
		})
	}
}
