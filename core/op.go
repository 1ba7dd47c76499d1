// Package core 提供 I/O 环引擎核心类型定义
//
// Op 是提交队列槽位的逻辑内容（操作描述符），Completion 是完成队列槽位的逻辑内容（结果描述符）。
// 两者均为环内槽位的瞬时视图：仅在 Acquire→Commit / TryPoll→Ack 之间有效。
package core

import (
	"fmt"
	"time"
)

// Opcode 操作类型（可扩展枚举：未知 opcode 原样转交执行器）
type Opcode uint8

const (
	OpNop Opcode = iota
	OpRead
	OpWrite
	OpReadv
	OpWritev
	OpFsync
	OpAccept
	OpConnect
	OpSend
	OpRecv
	OpTimeout
	OpPollAdd
	OpCancel
	OpMultishotAccept
	OpProvideBuffers
	OpRemoveBuffers

	// OpLast 内置 opcode 上界，>= OpLast 的值由执行器自行解释
	OpLast
)

var opNames = [...]string{
	OpNop:             "nop",
	OpRead:            "read",
	OpWrite:           "write",
	OpReadv:           "readv",
	OpWritev:          "writev",
	OpFsync:           "fsync",
	OpAccept:          "accept",
	OpConnect:         "connect",
	OpSend:            "send",
	OpRecv:            "recv",
	OpTimeout:         "timeout",
	OpPollAdd:         "poll_add",
	OpCancel:          "cancel",
	OpMultishotAccept: "multishot_accept",
	OpProvideBuffers:  "provide_buffers",
	OpRemoveBuffers:   "remove_buffers",
}

func (o Opcode) String() string {
	if o < OpLast {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Flags 提交标志位
type Flags uint8

const (
	// FlagLink 与下一个描述符组成 LinkChain
	FlagLink Flags = 1 << iota
	// FlagFixed Fd 字段为注册表 id 而非裸句柄
	FlagFixed
	// FlagMultishot 一次提交，多次完成
	FlagMultishot
	// FlagBufferSelect 执行前从 BufGroup 选取缓冲区
	FlagBufferSelect
)

// Has 判断是否包含全部标志
func (f Flags) Has(x Flags) bool { return f&x == x }

// OffCurrent 表示使用文件当前偏移（与内核 -1 语义一致）
const OffCurrent = ^uint64(0)

// Op 操作描述符（字段按大小降序排列，减少 padding）
//
// 提交前由调用方独占；Commit 后逻辑上归 Dispatch Engine 所有，直到对应完成产生。
type Op struct {
	Addr     []byte        // 24B 负载（read/write/send/recv 缓冲区；provide_buffers 的连续内存）
	Iov      [][]byte      // 24B 向量读写
	Ext      any           // 16B opcode 专属扩展（如 connect 的 sockaddr），原样转交执行器
	Tag      uint64        // 调用方不透明标签（完成时原样返回）
	Off      uint64        // 偏移
	Target   uint64        // OpCancel 目标标签
	Timeout  time.Duration // OpTimeout 时长
	Fd       int32         // 裸句柄，或 FlagFixed 时为注册表 id
	Len      uint32        // 长度（provide_buffers 时为单个缓冲区大小）
	Arg      uint32        // opcode 专属参数（poll 事件掩码、msg flags 等）
	BufIndex uint32        // 已注册内存区 id（0 = 无）
	BufGroup uint16        // FlagBufferSelect 缓冲组
	Opcode   Opcode
	Flags    Flags
}

// Reset 清零（槽位复用前调用）
func (op *Op) Reset() { *op = Op{} }

// Multishot 是否为多次完成操作
func (op *Op) Multishot() bool {
	return op.Flags.Has(FlagMultishot) || op.Opcode == OpMultishotAccept
}

// CQEFlags 完成标志位
type CQEFlags uint32

const (
	// CQEMore 多次完成操作后续还有完成
	CQEMore CQEFlags = 1 << iota
	// CQEBuffer 高 16 位携带选中的缓冲区 id
	CQEBuffer
)

// CQEBufferShift 缓冲区 id 在 CQEFlags 中的位移
const CQEBufferShift = 16

// Completion 完成描述符
type Completion struct {
	Tag   uint64   // 来源 Op 的标签
	Seq   uint64   // 环位置（由完成队列写入，Ack 使用）
	Res   int32    // >= 0 成功量，< 0 错误码
	Flags CQEFlags // CQEMore / CQEBuffer
}

// More 是否还有后续完成
func (c Completion) More() bool { return c.Flags&CQEMore != 0 }

// BufferID 返回选中的缓冲区 id
func (c Completion) BufferID() (uint16, bool) {
	if c.Flags&CQEBuffer == 0 {
		return 0, false
	}
	return uint16(c.Flags >> CQEBufferShift), true
}

// Err 将结果码映射为错误分类（Res >= 0 时为 nil）
func (c Completion) Err() error { return ResultError(c.Res) }

// Kind 注册资源类型
type Kind uint8

const (
	KindFile Kind = iota + 1
	KindSocket
	KindBuffer
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindSocket:
		return "socket"
	case KindBuffer:
		return "buffer"
	default:
		return "unknown"
	}
}
