package core

import (
	"errors"
	"fmt"
)

// 结果码（沿用 Linux errno 编号，取负）
const (
	ResNotFound     int32 = -2   // ENOENT: 取消目标不存在
	ResIO           int32 = -5   // EIO: 执行器 panic 等内部失败
	ResBadResource  int32 = -9   // EBADF: 未注册 / 过期 id
	ResAgain        int32 = -11  // EAGAIN
	ResInvalid      int32 = -22  // EINVAL
	ResTimerExpired int32 = -62  // ETIME: OpTimeout 到期
	ResNotSupported int32 = -95  // EOPNOTSUPP
	ResNoBuffers    int32 = -105 // ENOBUFS: 缓冲组为空
	ResCanceled     int32 = -125 // ECANCELED: 被取消 / 前驱失败
)

var (
	// ErrFull 环无空闲槽位（可恢复：排空完成或扩容后重试）
	ErrFull = errors.New("uring: ring full")
	// ErrEmpty 完成队列为空
	ErrEmpty = errors.New("uring: completion queue empty")
	// ErrTimedOut 等待超时（非引擎故障）
	ErrTimedOut = errors.New("uring: wait timed out")
	// ErrInvalidResource 未注册或过期的资源 id
	ErrInvalidResource = errors.New("uring: invalid resource")
	// ErrPropagatedFailure LinkChain 前驱失败导致跳过
	ErrPropagatedFailure = errors.New("uring: linked predecessor failed")
	// ErrCancelledNotFound 取消目标不存在（已自然完成）
	ErrCancelledNotFound = errors.New("uring: cancel target not found")
	// ErrTimerExpired OpTimeout 到期
	ErrTimerExpired = errors.New("uring: timer expired")
	// ErrNoBuffers 缓冲组为空
	ErrNoBuffers = errors.New("uring: no buffers in group")
	// ErrClosed 引擎已关闭
	ErrClosed = errors.New("uring: closed")
	// ErrRegistryFull 注册表槽位耗尽
	ErrRegistryFull = errors.New("uring: registry full")
	// ErrNotSupported 当前平台或后端不支持
	ErrNotSupported = errors.New("uring: not supported")
)

// ExecutionError 执行器返回的错误码（原样携带）
type ExecutionError struct {
	Res int32
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("uring: execution failed (res=%d)", e.Res)
}

// ResultError 将完成结果码映射为错误分类
//   - ResBadResource → ErrInvalidResource
//   - ResCanceled → ErrPropagatedFailure（LinkChain 跳过或被取消）
//   - ResNotFound → ErrCancelledNotFound
//   - 其余负值 → *ExecutionError
//
// 注意 ResNotFound 与执行器自身返回的 ENOENT 编号相同，只有 OpCancel 的完成应按此解释。
func ResultError(res int32) error {
	switch {
	case res >= 0:
		return nil
	case res == ResBadResource:
		return ErrInvalidResource
	case res == ResCanceled:
		return ErrPropagatedFailure
	case res == ResNotFound:
		return ErrCancelledNotFound
	case res == ResTimerExpired:
		return ErrTimerExpired
	case res == ResNoBuffers:
		return ErrNoBuffers
	default:
		return &ExecutionError{Res: res}
	}
}
