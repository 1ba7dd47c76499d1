// Package correlation 提供关联 ID 传播中间件。
//
// 把操作标签作为关联 ID 放入执行 context，执行器与下游中间件
// （例如 logging）可以据此把各自的输出归到同一个操作上。
//
//	cfg.Middlewares = []core.Middleware{correlation.New(), logging.New(nil)}
package correlation

import (
	"context"

	"github.com/uniyakcom/uring/core"
)

type ctxKey struct{}

// New 创建关联 ID 中间件。已有关联 ID 的 context 保持不变。
func New() core.Middleware {
	return func(next core.Executor) core.Executor {
		return core.ExecutorFunc(func(ctx context.Context, req *core.Request) int32 {
			if _, ok := FromContext(ctx); !ok {
				ctx = WithID(ctx, req.Op.Tag)
			}
			return next.Execute(ctx, req)
		})
	}
}

// WithID 返回携带关联 ID 的 context
func WithID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext 取出关联 ID
func FromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(ctxKey{}).(uint64)
	return id, ok
}
