// Package mem 提供内存设备执行器：文件、监听器、连接全部在进程内模拟。
//
// 用途：
//   - 测试与示例（确定性、无系统调用）
//   - 故障注入（按标签返回指定结果）、自定义操作码处理
//   - 设备轮询模式（WithDeferred）：完成只在 PollOnce 时推进，实现 core.Pollable
//
// 句柄为进程内小整数，与操作系统文件描述符无关。
package mem

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uniyakcom/uring/core"
)

// inboxDepth 每个连接未读消息上限
const inboxDepth = 64

type file struct {
	mu   sync.Mutex
	data []byte
	pos  uint64
}

type conn struct {
	mu      sync.Mutex
	inbox   chan []byte
	pending []byte // 上次 Recv 未读完的剩余 / PollAdd 预取
	peer    *conn
	closed  chan struct{}
	once    sync.Once
}

func newConn() *conn {
	return &conn{inbox: make(chan []byte, inboxDepth), closed: make(chan struct{})}
}

func (c *conn) close() { c.once.Do(func() { close(c.closed) }) }

type listener struct {
	backlog chan int
	closed  chan struct{}
	once    sync.Once
}

// Option 设备选项
type Option func(*Device)

// WithLatency 每个操作执行前等待 d（可被取消打断）
func WithLatency(d time.Duration) Option {
	return func(dev *Device) { dev.latency = d }
}

// WithDeferred 完成需要 PollOnce 推进（设备轮询后端）
func WithDeferred() Option {
	return func(dev *Device) { dev.deferred = true }
}

// Device 内存设备
type Device struct {
	mu       sync.Mutex
	next     int
	objs     map[int]any
	faults   map[uint64]int32
	handlers map[core.Opcode]core.ExecutorFunc

	latency  time.Duration
	deferred bool

	// 设备轮询：等待 PollOnce 的操作
	pmu   sync.Mutex
	gates []chan struct{}

	calls atomic.Int64
}

// New 创建内存设备
func New(opts ...Option) *Device {
	d := &Device{
		next:     3,
		objs:     make(map[int]any),
		faults:   make(map[uint64]int32),
		handlers: make(map[core.Opcode]core.ExecutorFunc),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

var (
	_ core.Executor = (*Device)(nil)
	_ core.Pollable = (*Device)(nil)
)

func (d *Device) add(obj any) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	fd := d.next
	d.next++
	d.objs[fd] = obj
	return fd
}

func (d *Device) lookup(fd int) any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.objs[fd]
}

// ─── 资源 ────────────────────────────────────────────────────────────

// CreateFile 创建内容为 data 的文件，返回句柄
func (d *Device) CreateFile(data []byte) int {
	return d.add(&file{data: append([]byte(nil), data...)})
}

// FileData 文件当前内容副本
func (d *Device) FileData(fd int) []byte {
	f, ok := d.lookup(fd).(*file)
	if !ok {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.data...)
}

// Listen 创建监听器
func (d *Device) Listen() int {
	return d.add(&listener{backlog: make(chan int, inboxDepth), closed: make(chan struct{})})
}

// Socket 创建未连接的套接字（供 OpConnect 使用）
func (d *Device) Socket() int {
	return d.add(newConn())
}

// Dial 连接到监听器：返回客户端句柄，服务端句柄进入 backlog 等待 Accept
func (d *Device) Dial(lfd int) (int, error) {
	l, ok := d.lookup(lfd).(*listener)
	if !ok {
		return -1, core.ErrInvalidResource
	}
	cli := d.Socket()
	if res := d.connect(cli, l); res < 0 {
		return -1, core.ResultError(res)
	}
	return cli, nil
}

// Pipe 创建一对已连接的套接字
func (d *Device) Pipe() (int, int) {
	a, b := newConn(), newConn()
	a.peer, b.peer = b, a
	return d.add(a), d.add(b)
}

// Close 关闭句柄；阻塞在其上的操作返回 ResBadResource
func (d *Device) Close(fd int) {
	d.mu.Lock()
	obj := d.objs[fd]
	delete(d.objs, fd)
	d.mu.Unlock()
	switch o := obj.(type) {
	case *conn:
		o.close()
	case *listener:
		o.once.Do(func() { close(o.closed) })
	}
}

// Fail 标签为 tag 的操作直接返回 res（一次性）
func (d *Device) Fail(tag uint64, res int32) {
	d.mu.Lock()
	d.faults[tag] = res
	d.mu.Unlock()
}

// Handle 为操作码注册自定义处理
func (d *Device) Handle(op core.Opcode, fn core.ExecutorFunc) {
	d.mu.Lock()
	d.handlers[op] = fn
	d.mu.Unlock()
}

// Calls 执行器被调用的次数
func (d *Device) Calls() int64 { return d.calls.Load() }

// ─── 设备轮询 ────────────────────────────────────────────────────────

// PollOnce 推进全部等待中的操作，返回推进数
func (d *Device) PollOnce() int {
	d.pmu.Lock()
	gates := d.gates
	d.gates = nil
	d.pmu.Unlock()
	for _, g := range gates {
		close(g)
	}
	return len(gates)
}

func (d *Device) gate(ctx context.Context) bool {
	g := make(chan struct{})
	d.pmu.Lock()
	d.gates = append(d.gates, g)
	d.pmu.Unlock()
	select {
	case <-g:
		return true
	case <-ctx.Done():
		return false
	}
}

// ─── Executor ────────────────────────────────────────────────────────

// Execute 实现 core.Executor
func (d *Device) Execute(ctx context.Context, req *core.Request) int32 {
	d.calls.Add(1)
	op := req.Op

	d.mu.Lock()
	res, faulty := d.faults[op.Tag]
	delete(d.faults, op.Tag)
	h := d.handlers[op.Opcode]
	d.mu.Unlock()

	if d.latency > 0 && !sleep(ctx, d.latency) {
		return core.ResCanceled
	}
	if faulty {
		return res
	}
	if h != nil {
		return h(ctx, req)
	}

	res = d.execute(ctx, req)
	if d.deferred && !d.gate(ctx) {
		return core.ResCanceled
	}
	return res
}

func sleep(ctx context.Context, dur time.Duration) bool {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Device) execute(ctx context.Context, req *core.Request) int32 {
	op := req.Op
	obj := d.lookup(req.Fd)
	switch op.Opcode {
	case core.OpRead, core.OpReadv, core.OpWrite, core.OpWritev, core.OpFsync:
		f, ok := obj.(*file)
		if !ok {
			return core.ResBadResource
		}
		return f.exec(op, req.Buf)
	case core.OpAccept, core.OpMultishotAccept:
		l, ok := obj.(*listener)
		if !ok {
			return core.ResBadResource
		}
		return d.accept(ctx, l)
	case core.OpConnect:
		if _, ok := obj.(*conn); !ok {
			return core.ResBadResource
		}
		lfd, ok := op.Ext.(int)
		if !ok {
			return core.ResInvalid
		}
		l, ok := d.lookup(lfd).(*listener)
		if !ok {
			return -111 // ECONNREFUSED
		}
		return d.connect(req.Fd, l)
	case core.OpSend:
		c, ok := obj.(*conn)
		if !ok {
			return core.ResBadResource
		}
		return c.send(ctx, req.Buf)
	case core.OpRecv:
		c, ok := obj.(*conn)
		if !ok {
			return core.ResBadResource
		}
		return c.recv(ctx, req.Buf)
	case core.OpPollAdd:
		c, ok := obj.(*conn)
		if !ok {
			return core.ResBadResource
		}
		return c.poll(ctx)
	}
	return core.ResNotSupported
}

// ─── 文件 ────────────────────────────────────────────────────────────

func (f *file) exec(op *core.Op, buf []byte) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	off := op.Off
	advance := off == core.OffCurrent
	if advance {
		off = f.pos
	}
	var n int
	switch op.Opcode {
	case core.OpFsync:
		return 0
	case core.OpRead:
		n = f.readAt(buf, off)
	case core.OpReadv:
		for _, b := range op.Iov {
			k := f.readAt(b, off+uint64(n))
			n += k
			if k < len(b) {
				break
			}
		}
	case core.OpWrite:
		n = f.writeAt(buf, off)
	case core.OpWritev:
		for _, b := range op.Iov {
			n += f.writeAt(b, off+uint64(n))
		}
	}
	if advance {
		f.pos = off + uint64(n)
	}
	return int32(n)
}

func (f *file) readAt(b []byte, off uint64) int {
	if off >= uint64(len(f.data)) {
		return 0
	}
	return copy(b, f.data[off:])
}

func (f *file) writeAt(b []byte, off uint64) int {
	end := off + uint64(len(b))
	if end > uint64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	return copy(f.data[off:], b)
}

// ─── 套接字 ──────────────────────────────────────────────────────────

func (d *Device) accept(ctx context.Context, l *listener) int32 {
	select {
	case fd := <-l.backlog:
		return int32(fd)
	case <-l.closed:
		return core.ResBadResource
	case <-ctx.Done():
		return core.ResCanceled
	}
}

func (d *Device) connect(cli int, l *listener) int32 {
	c, ok := d.lookup(cli).(*conn)
	if !ok {
		return core.ResBadResource
	}
	srv := newConn()
	c.peer, srv.peer = srv, c
	sfd := d.add(srv)
	select {
	case l.backlog <- sfd:
		return 0
	default:
		return core.ResAgain
	}
}

func (c *conn) send(ctx context.Context, b []byte) int32 {
	if c.peer == nil {
		return -107 // ENOTCONN
	}
	msg := append([]byte(nil), b...)
	select {
	case c.peer.inbox <- msg:
		return int32(len(b))
	case <-c.closed:
		return core.ResBadResource
	case <-c.peer.closed:
		return -32 // EPIPE
	case <-ctx.Done():
		return core.ResCanceled
	}
}

func (c *conn) recv(ctx context.Context, b []byte) int32 {
	c.mu.Lock()
	if len(c.pending) > 0 {
		n := copy(b, c.pending)
		c.pending = c.pending[n:]
		c.mu.Unlock()
		return int32(n)
	}
	c.mu.Unlock()

	var peerClosed <-chan struct{}
	if c.peer != nil {
		peerClosed = c.peer.closed
	}
	select {
	case msg := <-c.inbox:
		n := copy(b, msg)
		if n < len(msg) {
			c.mu.Lock()
			c.pending = append(c.pending, msg[n:]...)
			c.mu.Unlock()
		}
		return int32(n)
	case <-peerClosed:
		return 0
	case <-c.closed:
		return core.ResBadResource
	case <-ctx.Done():
		return core.ResCanceled
	}
}

// poll 等待可读；预取的消息保存在 pending 中供下次 Recv
func (c *conn) poll(ctx context.Context) int32 {
	const pollIn = 1
	c.mu.Lock()
	ready := len(c.pending) > 0
	c.mu.Unlock()
	if ready {
		return pollIn
	}
	select {
	case msg := <-c.inbox:
		c.mu.Lock()
		c.pending = append(c.pending, msg...)
		c.mu.Unlock()
		return pollIn
	case <-c.closed:
		return core.ResBadResource
	case <-ctx.Done():
		return core.ResCanceled
	}
}
