//go:build !linux

package iouring

import (
	"context"

	"github.com/uniyakcom/uring/core"
)

// Executor 非 Linux 平台占位
type Executor struct{}

var _ core.Executor = (*Executor)(nil)

// New 非 Linux 平台返回 core.ErrNotSupported
func New(Config) (*Executor, error) {
	return nil, core.ErrNotSupported
}

// IsSupported 非 Linux 平台恒为 false
func IsSupported() bool {
	return false
}

// Close 无操作
func (x *Executor) Close() error { return nil }

// Execute 实现 core.Executor
func (x *Executor) Execute(context.Context, *core.Request) int32 {
	return core.ResNotSupported
}
