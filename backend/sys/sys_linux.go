//go:build linux

package sys

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"

	"github.com/uniyakcom/uring/core"
)

// Executor 系统调用执行器
type Executor struct{}

var _ core.Executor = (*Executor)(nil)

// New 创建系统调用执行器
func New() (*Executor, error) {
	return &Executor{}, nil
}

// Execute 实现 core.Executor
func (x *Executor) Execute(ctx context.Context, req *core.Request) int32 {
	op := req.Op
	fd := req.Fd
	switch op.Opcode {
	case core.OpRead:
		if op.Off == core.OffCurrent {
			return result(unix.Read(fd, req.Buf))
		}
		return result(unix.Pread(fd, req.Buf, int64(op.Off)))
	case core.OpWrite:
		if op.Off == core.OffCurrent {
			return result(unix.Write(fd, req.Buf))
		}
		return result(unix.Pwrite(fd, req.Buf, int64(op.Off)))
	case core.OpReadv:
		if op.Off == core.OffCurrent {
			return result(unix.Readv(fd, op.Iov))
		}
		return result(unix.Preadv(fd, op.Iov, int64(op.Off)))
	case core.OpWritev:
		if op.Off == core.OffCurrent {
			return result(unix.Writev(fd, op.Iov))
		}
		return result(unix.Pwritev(fd, op.Iov, int64(op.Off)))
	case core.OpFsync:
		return result(0, unix.Fsync(fd))
	case core.OpAccept, core.OpMultishotAccept:
		return retry(ctx, fd, unix.POLLIN, func() (int, error) {
			nfd, _, err := unix.Accept4(fd, unix.SOCK_CLOEXEC)
			return nfd, err
		})
	case core.OpConnect:
		return connect(ctx, fd, op.Ext)
	case core.OpSend:
		return retry(ctx, fd, unix.POLLOUT, func() (int, error) {
			return unix.SendmsgN(fd, req.Buf, nil, nil, int(op.Arg)|unix.MSG_NOSIGNAL)
		})
	case core.OpRecv:
		return retry(ctx, fd, unix.POLLIN, func() (int, error) {
			n, _, err := unix.Recvfrom(fd, req.Buf, int(op.Arg))
			return n, err
		})
	case core.OpPollAdd:
		events := int16(op.Arg)
		if events == 0 {
			events = unix.POLLIN
		}
		return wait(ctx, fd, events)
	}
	return core.ResNotSupported
}

func connect(ctx context.Context, fd int, ext any) int32 {
	sa, ok := ext.(unix.Sockaddr)
	if !ok {
		return core.ResInvalid
	}
	err := unix.Connect(fd, sa)
	if !errors.Is(err, unix.EINPROGRESS) {
		return result(0, err)
	}
	// 非阻塞套接字：等待可写后读取 SO_ERROR
	if res := wait(ctx, fd, unix.POLLOUT); res < 0 {
		return res
	}
	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return result(0, err)
	}
	return -int32(soerr)
}

// retry 等待就绪后执行 fn；非阻塞句柄返回 EAGAIN 时重新等待
func retry(ctx context.Context, fd int, events int16, fn func() (int, error)) int32 {
	for {
		if res := wait(ctx, fd, events); res < 0 {
			return res
		}
		n, err := fn()
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			continue
		}
		return result(n, err)
	}
}

// wait 以 pollSlice 为单位等待 events 就绪，返回就绪事件掩码
func wait(ctx context.Context, fd int, events int16) int32 {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	ms := int(pollSlice.Milliseconds())
	for {
		if ctx.Err() != nil {
			return core.ResCanceled
		}
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return result(0, err)
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return core.ResBadResource
		}
		return int32(fds[0].Revents)
	}
}

// result 把 (n, err) 编码为有符号结果
func result(n int, err error) int32 {
	if err == nil {
		return int32(n)
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	return core.ResIO
}
