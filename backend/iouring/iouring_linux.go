//go:build linux

package iouring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"

	"github.com/iceber/iouring-go"

	"github.com/uniyakcom/uring/core"
)

// Executor 内核 io_uring 执行器
type Executor struct {
	ring *iouring.IOURing
	mu   sync.Mutex // SubmitRequest 串行化
}

var _ core.Executor = (*Executor)(nil)

// New 创建内核环
func New(cfg Config) (*Executor, error) {
	if cfg.Entries == 0 {
		cfg.Entries = 256
	}
	ring, err := iouring.New(cfg.Entries)
	if err != nil {
		return nil, fmt.Errorf("iouring: create ring: %w", err)
	}
	return &Executor{ring: ring}, nil
}

// IsSupported 内核是否支持 io_uring（>= 5.1）
func IsSupported() bool {
	ring, err := iouring.New(1)
	if err != nil {
		return false
	}
	ring.Close()
	return true
}

// Close 关闭内核环
func (x *Executor) Close() error {
	return x.ring.Close()
}

func prepare(req *core.Request) (iouring.PrepRequest, bool) {
	op := req.Op
	switch op.Opcode {
	case core.OpRead:
		if op.Off == core.OffCurrent {
			return iouring.Read(req.Fd, req.Buf), true
		}
		return iouring.Pread(req.Fd, req.Buf, op.Off), true
	case core.OpWrite:
		if op.Off == core.OffCurrent {
			return iouring.Write(req.Fd, req.Buf), true
		}
		return iouring.Pwrite(req.Fd, req.Buf, op.Off), true
	case core.OpFsync:
		return iouring.Fsync(req.Fd), true
	case core.OpSend:
		return iouring.Send(req.Fd, req.Buf, int(op.Arg)), true
	case core.OpRecv:
		return iouring.Recv(req.Fd, req.Buf, int(op.Arg)), true
	}
	return nil, false
}

// Execute 实现 core.Executor
func (x *Executor) Execute(ctx context.Context, req *core.Request) int32 {
	prep, ok := prepare(req)
	if !ok {
		return core.ResNotSupported
	}

	x.mu.Lock()
	r, err := x.ring.SubmitRequest(prep, nil)
	x.mu.Unlock()
	if err != nil {
		return result(0, err)
	}

	select {
	case <-r.Done():
	case <-ctx.Done():
		// 取消失败说明请求已经完成或即将完成；两种情况都等待目标结束
		x.mu.Lock()
		_, _ = r.Cancel()
		x.mu.Unlock()
		<-r.Done()
	}
	return result(r.GetRes())
}

func result(n int, err error) int32 {
	if err == nil {
		return int32(n)
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	return core.ResIO
}
