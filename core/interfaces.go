package core

import (
	"context"
	"time"
)

// Request 交给执行器的已解析请求
type Request struct {
	Op     *Op    // 引擎持有的描述符副本
	Fd     int    // 解析后的句柄（FlagFixed 时来自注册表）
	Kind   Kind   // 资源类型（裸句柄时为 0）
	Buf    []byte // 实际缓冲区：选中的组缓冲区 > 已注册内存区 > Op.Addr
	BufID  uint16 // FlagBufferSelect 选中的缓冲区 id
	Rearm  uint32 // multishot 第几次执行（从 0 开始）
}

// Executor 外部操作执行器：执行一个操作并返回有符号结果
// 可阻塞；ctx 在操作被取消或引擎关闭时 Done。
type Executor interface {
	Execute(ctx context.Context, req *Request) int32
}

// ExecutorFunc 函数适配器
type ExecutorFunc func(ctx context.Context, req *Request) int32

// Execute 实现 Executor
func (f ExecutorFunc) Execute(ctx context.Context, req *Request) int32 { return f(ctx, req) }

// Pollable 设备轮询后端：完成需要主动轮询才会推进
// BusyPoll 循环每轮调用 PollOnce；OnDemand Wait 在阻塞前也会轮询
type Pollable interface {
	PollOnce() int
}

// Middleware 执行器中间件
type Middleware func(Executor) Executor

// Chain 按顺序套用中间件（第一个在最外层）
func Chain(exec Executor, mws ...Middleware) Executor {
	for i := len(mws) - 1; i >= 0; i-- {
		exec = mws[i](exec)
	}
	return exec
}

// Mode 轮询模式（构造时选定）
type Mode uint8

const (
	ModeOnDemand Mode = iota
	ModeBusyPoll
	ModeQueuePoll
	ModeHybrid // BusyPoll + QueuePoll
)

func (m Mode) String() string {
	switch m {
	case ModeOnDemand:
		return "ondemand"
	case ModeBusyPoll:
		return "busypoll"
	case ModeQueuePoll:
		return "qpoll"
	case ModeHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// QueuePolls 是否启用后台提交队列轮询
func (m Mode) QueuePolls() bool { return m == ModeQueuePoll || m == ModeHybrid }

// BusyPolls 是否启用后台忙轮询
func (m Mode) BusyPolls() bool { return m == ModeBusyPoll || m == ModeHybrid }

// PollState Poller 状态
type PollState uint32

const (
	StateIdle PollState = iota
	StateInterruptWait
	StateBusyPoll
	StateQueuePoll
	StateQueuePollSleeping
)

func (s PollState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInterruptWait:
		return "interrupt_wait"
	case StateBusyPoll:
		return "busy_poll"
	case StateQueuePoll:
		return "queue_poll"
	case StateQueuePollSleeping:
		return "queue_poll_sleeping"
	default:
		return "unknown"
	}
}

// Stats 运行时统计
type Stats struct {
	Submitted    int64 // Commit 发布的描述符总数
	Dispatched   int64 // 已取出并分发的描述符
	Completed    int64 // 写入完成队列的完成数
	Backpressure int64 // 因完成额度耗尽而暂停分发的次数
	Crossings    int64 // 边界穿越次数（Notify 唤醒 / 阻塞等待）
	Sleeps       int64 // QueuePoll 进入睡眠次数
	Wakeups      int64 // QueuePoll 被唤醒次数
	Panics       int64 // 执行器 panic 次数
	Overflow     int64 // 工作池满载时溢出到独立 goroutine 的执行次数
	Inflight     int64 // 已分发未完成
	SQDepth      int64 // 提交队列积压
	CQDepth      int64 // 完成队列积压
}

// Ring I/O 环引擎接口
type Ring interface {
	// Acquire 获取一个提交槽位（满时返回 ErrFull；共享提交模式下返回 ErrNotSupported）
	Acquire() (*Op, error)

	// Commit 批量发布 n 个已获取的槽位，返回实际发布数
	Commit(n int) int

	// Submit 复制并发布一批描述符（SharedSubmit 时多 goroutine 并发安全）
	// 空间不足时发布能放下的部分并返回 ErrFull
	Submit(ops ...Op) (int, error)

	// Notify 边界穿越通知（OnDemand 或 QueuePoll 睡眠时必需）
	Notify() error

	// TryPoll 非阻塞获取下一个完成
	TryPoll() (*Completion, bool)

	// Wait 等待下一个完成（仅在 TryPoll 无结果时阻塞）
	Wait(timeout time.Duration) (*Completion, error)

	// WaitMin 一次阻塞调用内等待至少 min 个完成可被 TryPoll 取得
	WaitMin(min int, timeout time.Duration) (int, error)

	// Ack 确认一个完成，释放槽位
	Ack(c *Completion)

	// AckTag 按标签确认最早一个已观察未确认的完成
	AckTag(tag uint64) bool

	// Register 注册句柄，返回带代号的 id
	Register(handle int, kind Kind) (uint32, error)

	// RegisterBuffer 注册内存区
	RegisterBuffer(mem []byte) (uint32, error)

	// Unregister 注销 id
	Unregister(id uint32) error

	// ProvideBufferGroup 由引擎分配 count 个 size 字节缓冲区放入缓冲组
	ProvideBufferGroup(group uint16, count, size int) error

	// State 当前 Poller 状态
	State() PollState

	// Stats 返回运行时统计
	Stats() Stats

	// Close 立即关闭
	Close()

	// GracefulClose 优雅关闭（等待在途操作完成或超时）
	// timeout=0 时等效于 Close()
	GracefulClose(timeout time.Duration) error
}
