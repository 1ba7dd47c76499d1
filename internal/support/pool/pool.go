// Package pool 提供缓冲区 Arena：为引擎分配的提供缓冲组（ProvideBufferGroup）切分连续内存
//
// 设计：
//   - 以 64KB chunk 为单位预分配，Alloc 按 8 字节对齐切分（无单独 malloc）
//   - 超过 chunk 大小的请求直接单独分配
//   - chunk 满时自动切换新 chunk，对调用侧透明
//   - 缓冲区在引擎生命周期内常驻，随 Arena 一并回收（不单独释放）
package pool

import "sync"

const arenaChunkSize = 64 * 1024

// ArenaChunk 连续内存块
type ArenaChunk struct {
	buf    []byte
	offset int
}

func newArenaChunk() *ArenaChunk {
	return &ArenaChunk{buf: make([]byte, arenaChunkSize)}
}

// Alloc 从块中切分 n 字节（cap 截断到对齐边界，append 不会越界写入相邻缓冲区）
func (a *ArenaChunk) Alloc(n int) []byte {
	aligned := (n + 7) &^ 7
	if a.offset+aligned > len(a.buf) {
		return nil
	}
	s := a.buf[a.offset : a.offset+n : a.offset+n]
	a.offset += aligned
	return s
}

// ─── Arena ───────────────────────────────────────────────────────────

// Arena 缓冲区分配器（并发安全）
type Arena struct {
	mu      sync.Mutex
	current *ArenaChunk
	chunks  int
	bytes   int
}

// NewArena 创建 Arena
func NewArena() *Arena {
	return &Arena{current: newArenaChunk(), chunks: 1}
}

// Alloc 分配 n 字节
func (a *Arena) Alloc(n int) []byte {
	if n <= 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.bytes += n
	if n > arenaChunkSize {
		return make([]byte, n)
	}
	buf := a.current.Alloc(n)
	if buf == nil {
		// 当前 chunk 满，切换新 chunk
		a.current = newArenaChunk()
		a.chunks++
		buf = a.current.Alloc(n)
	}
	return buf
}

// AllocN 分配 count 个 size 字节缓冲区
func (a *Arena) AllocN(count, size int) [][]byte {
	out := make([][]byte, count)
	for i := range out {
		out[i] = a.Alloc(size)
	}
	return out
}

// Usage 返回 (chunk 数, 已分配字节数)
func (a *Arena) Usage() (chunks, bytes int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chunks, a.bytes
}
