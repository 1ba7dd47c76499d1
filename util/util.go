// Package util 提供引擎统计用的低争用计数器
package util

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

// maxShards 分片上限
const maxShards = 256

// PerCPUCounter 分片计数器：写入按调用 goroutine 的栈地址散列到独立 cache line，
// 读取时求和。执行器 goroutine、轮询循环、调用方同时计数时互不争用。
type PerCPUCounter struct {
	shards [maxShards]shard
	mask   int
}

type shard struct {
	n atomic.Int64
	_ [56]byte // 64B cache line
}

// NewPerCPUCounter 按 GOMAXPROCS 取分片数（2 的幂，至少 8）
func NewPerCPUCounter() *PerCPUCounter {
	n := runtime.GOMAXPROCS(0)
	sz := 8
	for sz < n {
		sz <<= 1
	}
	if sz > maxShards {
		sz = maxShards
	}
	return &PerCPUCounter{mask: sz - 1}
}

// Add 累加 delta
//
//go:nosplit
func (c *PerCPUCounter) Add(delta int64) {
	var x uintptr
	// goroutine 最小栈 8KB：右移 13 位使不同 goroutine 落到不同分片
	i := int(uintptr(unsafe.Pointer(&x))>>13) & c.mask
	c.shards[i].n.Add(delta)
}

// Read 当前总和（非原子快照，统计用途足够）
func (c *PerCPUCounter) Read() int64 {
	var sum int64
	for i := 0; i <= c.mask; i++ {
		sum += c.shards[i].n.Load()
	}
	return sum
}

// Reset 清零
func (c *PerCPUCounter) Reset() {
	for i := 0; i <= c.mask; i++ {
		c.shards[i].n.Store(0)
	}
}
