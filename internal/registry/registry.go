// Package registry 提供资源注册表：小整数 id → 预校验的外部句柄 / 内存区。
//
// id 布局（uint32）：
//
//	高 16 位: generation（每次注销后递增，永不为 0）
//	低 16 位: slot 下标 + 1
//
// 注销后 generation 立即变化，过期 id 查找失败（ErrInvalidResource）；
// 槽位只有在引用计数归零后才进入空闲链表，在途操作引用期间绝不复用。
//
// 另外维护提供缓冲组（provide-buffers / buffer-select）。
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/uniyakcom/uring/core"
)

// MaxSlots 最大槽位数
const MaxSlots = 1<<16 - 1

// MaxBIDs 每个缓冲组的 bid 空间（bid 为 16 位）
const MaxBIDs = 1 << 16

// ErrBIDRange 缓冲区 id 超出 16 位
var ErrBIDRange = errors.New("registry: buffer ids exceed 16 bits")

// Resource 已注册资源
type Resource struct {
	Handle int
	Kind   core.Kind
	Mem    []byte // KindBuffer 时的内存区
}

type entry struct {
	res   Resource
	gen   uint16
	refs  int32
	valid bool
}

type buffer struct {
	bid uint16
	buf []byte
}

// Registry 资源注册表（并发安全：调用方注册，引擎查找）
type Registry struct {
	mu      sync.Mutex
	entries []entry
	free    []uint16 // 可复用的 slot 下标
	groups  map[uint16][]buffer
	next    map[uint16]int // 各组下一个未使用的 bid
}

// New 创建注册表
func New() *Registry {
	return &Registry{
		groups: make(map[uint16][]buffer),
		next:   make(map[uint16]int),
	}
}

func makeID(slot, gen uint16) uint32 { return uint32(gen)<<16 | uint32(slot+1) }

func splitID(id uint32) (slot, gen uint16, ok bool) {
	low := uint16(id)
	if low == 0 {
		return 0, 0, false
	}
	return low - 1, uint16(id >> 16), true
}

// Register 注册句柄，返回带代号的 id
func (r *Registry) Register(handle int, kind core.Kind) (uint32, error) {
	return r.register(Resource{Handle: handle, Kind: kind})
}

// RegisterBuffer 注册内存区
func (r *Registry) RegisterBuffer(mem []byte) (uint32, error) {
	return r.register(Resource{Handle: -1, Kind: core.KindBuffer, Mem: mem})
}

func (r *Registry) register(res Resource) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var slot uint16
	if n := len(r.free); n > 0 {
		slot = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		if len(r.entries) >= MaxSlots {
			return 0, core.ErrRegistryFull
		}
		r.entries = append(r.entries, entry{gen: 1})
		slot = uint16(len(r.entries) - 1)
	}
	e := &r.entries[slot]
	e.res, e.valid, e.refs = res, true, 0
	return makeID(slot, e.gen), nil
}

// Unregister 注销 id；在途引用归零前槽位不会被复用
func (r *Registry) Unregister(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, slot, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.valid = false
	e.gen++
	if e.gen == 0 {
		e.gen = 1
	}
	if e.refs == 0 {
		e.res = Resource{}
		r.free = append(r.free, slot)
	}
	return nil
}

func (r *Registry) lookup(id uint32) (*entry, uint16, error) {
	slot, gen, ok := splitID(id)
	if !ok || int(slot) >= len(r.entries) {
		return nil, 0, fmt.Errorf("registry: id %#x: %w", id, core.ErrInvalidResource)
	}
	e := &r.entries[slot]
	if !e.valid || e.gen != gen {
		return nil, 0, fmt.Errorf("registry: stale id %#x: %w", id, core.ErrInvalidResource)
	}
	return e, slot, nil
}

// Acquire 查找并持有一个引用（引擎在分发时调用）
func (r *Registry) Acquire(id uint32) (Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, _, err := r.lookup(id)
	if err != nil {
		return Resource{}, err
	}
	e.refs++
	return e.res, nil
}

// Release 释放 Acquire 持有的引用；已注销且引用归零时槽位进入空闲链表
func (r *Registry) Release(id uint32) {
	slot, _, ok := splitID(id)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(slot) >= len(r.entries) {
		return
	}
	e := &r.entries[slot]
	if e.refs == 0 {
		return
	}
	e.refs--
	if e.refs == 0 && !e.valid {
		e.res = Resource{}
		r.free = append(r.free, slot)
	}
}

// Len 有效注册数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.entries {
		if r.entries[i].valid {
			n++
		}
	}
	return n
}

// ─── 提供缓冲组 ──────────────────────────────────────────────────────

// Provide 向缓冲组加入缓冲区，id 从 startBID 依次递增；返回加入数量
// id 越过 16 位时整体拒绝（ErrBIDRange），不会回绕产生重复 bid
func (r *Registry) Provide(group, startBID uint16, bufs [][]byte) (int, error) {
	if err := checkBIDs(group, int(startBID), len(bufs)); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provide(group, int(startBID), bufs)
	return len(bufs), nil
}

// ProvideNext 以组内下一个未使用的 bid 为起点加入缓冲区，返回起始 bid
func (r *Registry) ProvideNext(group uint16, bufs [][]byte) (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := r.next[group]
	if err := checkBIDs(group, start, len(bufs)); err != nil {
		return 0, err
	}
	r.provide(group, start, bufs)
	return uint16(start), nil
}

// NextBID 组内下一个未使用的 bid（可能等于 MaxBIDs，表示已用尽）
func (r *Registry) NextBID(group uint16) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next[group]
}

func checkBIDs(group uint16, start, n int) error {
	if start+n > MaxBIDs {
		return fmt.Errorf("registry: group %d bids [%d, %d): %w", group, start, start+n, ErrBIDRange)
	}
	return nil
}

func (r *Registry) provide(group uint16, start int, bufs [][]byte) {
	g := r.groups[group]
	for i, b := range bufs {
		g = append(g, buffer{bid: uint16(start + i), buf: b})
	}
	r.groups[group] = g
	if end := start + len(bufs); end > r.next[group] {
		r.next[group] = end
	}
}

// Remove 从缓冲组移除至多 n 个缓冲区，返回实际移除数
func (r *Registry) Remove(group uint16, n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.groups[group]
	if n > len(g) {
		n = len(g)
	}
	r.groups[group] = g[:len(g)-n]
	return n
}

// Select 从缓冲组取出一个缓冲区（LIFO，最近归还的缓存最热）
func (r *Registry) Select(group uint16) (uint16, []byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.groups[group]
	if len(g) == 0 {
		return 0, nil, false
	}
	b := g[len(g)-1]
	r.groups[group] = g[:len(g)-1]
	return b.bid, b.buf, true
}

// Recycle 操作失败时归还选中的缓冲区
func (r *Registry) Recycle(group, bid uint16, buf []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[group] = append(r.groups[group], buffer{bid: bid, buf: buf})
}

// Available 缓冲组剩余缓冲区数
func (r *Registry) Available(group uint16) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups[group])
}
