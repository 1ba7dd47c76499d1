package core

import "time"

// 以下 Prep* 在已获取的槽位上就地填充描述符（零分配）

// PrepNop 空操作
func PrepNop(op *Op, tag uint64) {
	op.Opcode, op.Tag = OpNop, tag
}

// PrepRead 读取 fd 的 off 处到 buf
func PrepRead(op *Op, fd int32, buf []byte, off, tag uint64) {
	op.Opcode, op.Fd, op.Addr, op.Len, op.Off, op.Tag = OpRead, fd, buf, uint32(len(buf)), off, tag
}

// PrepWrite 将 buf 写入 fd 的 off 处
func PrepWrite(op *Op, fd int32, buf []byte, off, tag uint64) {
	op.Opcode, op.Fd, op.Addr, op.Len, op.Off, op.Tag = OpWrite, fd, buf, uint32(len(buf)), off, tag
}

// PrepReadv 向量读
func PrepReadv(op *Op, fd int32, iov [][]byte, off, tag uint64) {
	op.Opcode, op.Fd, op.Iov, op.Off, op.Tag = OpReadv, fd, iov, off, tag
}

// PrepWritev 向量写
func PrepWritev(op *Op, fd int32, iov [][]byte, off, tag uint64) {
	op.Opcode, op.Fd, op.Iov, op.Off, op.Tag = OpWritev, fd, iov, off, tag
}

// PrepFsync 同步
func PrepFsync(op *Op, fd int32, tag uint64) {
	op.Opcode, op.Fd, op.Tag = OpFsync, fd, tag
}

// PrepAccept 接受连接；multishot=true 时每个新连接产生一次完成
func PrepAccept(op *Op, fd int32, multishot bool, tag uint64) {
	op.Opcode, op.Fd, op.Tag = OpAccept, fd, tag
	if multishot {
		op.Opcode = OpMultishotAccept
	}
}

// PrepRecv 接收；buf 为 nil 时可配合 FlagBufferSelect 使用
func PrepRecv(op *Op, fd int32, buf []byte, tag uint64) {
	op.Opcode, op.Fd, op.Addr, op.Len, op.Tag = OpRecv, fd, buf, uint32(len(buf)), tag
}

// PrepSend 发送
func PrepSend(op *Op, fd int32, buf []byte, tag uint64) {
	op.Opcode, op.Fd, op.Addr, op.Len, op.Tag = OpSend, fd, buf, uint32(len(buf)), tag
}

// PrepTimeout 定时操作，到期产生 ResTimerExpired
func PrepTimeout(op *Op, d time.Duration, tag uint64) {
	op.Opcode, op.Timeout, op.Tag = OpTimeout, d, tag
}

// PrepCancel 取消标签为 target 的在途操作
func PrepCancel(op *Op, target, tag uint64) {
	op.Opcode, op.Target, op.Tag = OpCancel, target, tag
}

// PrepProvideBuffers 将 mem 切分为 count 个 size 字节缓冲区放入 group，起始 id 为 bid
func PrepProvideBuffers(op *Op, mem []byte, count int32, size uint32, group uint16, bid uint64, tag uint64) {
	op.Opcode, op.Addr, op.Fd, op.Len, op.BufGroup, op.Off, op.Tag = OpProvideBuffers, mem, count, size, group, bid, tag
}
