// Package noop 提供可切换锁
//
// 提交队列默认为严格单生产者，Acquire/Commit 上的锁为空操作（零开销）；
// 启用共享提交（多个调用方 goroutine 共用一个提交队列）时切换为真实互斥锁，
// 作为环外部的串行化点。
//
//	mu := noop.NewMutex(true)  // 共享提交
//	mu := noop.NewMutex(false) // 单生产者（零开销）
package noop

import "sync"

// Mutex 可切换互斥锁，nil 时 Lock/Unlock 为空操作
type Mutex struct {
	mu *sync.Mutex
}

// NewMutex 创建可切换互斥锁。safe=true 启用真实锁，false 则零开销。
func NewMutex(safe bool) Mutex {
	if safe {
		return Mutex{mu: &sync.Mutex{}}
	}
	return Mutex{}
}

// Lock 加锁（nil 时为空操作）
func (m Mutex) Lock() {
	if m.mu != nil {
		m.mu.Lock()
	}
}

// Unlock 解锁（nil 时为空操作）
func (m Mutex) Unlock() {
	if m.mu != nil {
		m.mu.Unlock()
	}
}

// Safe 是否为真实锁
func (m Mutex) Safe() bool { return m.mu != nil }
