//go:build !linux

package sys

import (
	"context"

	"github.com/uniyakcom/uring/core"
)

// Executor 非 Linux 平台占位：全部操作返回 ResNotSupported
type Executor struct{}

var _ core.Executor = (*Executor)(nil)

// New 非 Linux 平台不可用
func New() (*Executor, error) {
	return nil, core.ErrNotSupported
}

// Execute 实现 core.Executor
func (x *Executor) Execute(context.Context, *core.Request) int32 {
	return core.ResNotSupported
}
