package wpool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestPoolSubmit 所有任务都被执行
func TestPoolSubmit(t *testing.T) {
	p, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Release()

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; {
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		})
		switch {
		case err == nil:
			i++
		case IsOverload(err):
			// 非阻塞池：满载时让出后重试
			wg.Done()
			runtime.Gosched()
		default:
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()
	if n.Load() != 100 {
		t.Errorf("expected 100 tasks, got %d", n.Load())
	}
}

// TestPoolReleaseThenSubmit 关闭后提交返回池已关闭
func TestPoolReleaseThenSubmit(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := p.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if err := p.Submit(func() {}); !IsClosed(err) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

// TestPoolOverloadNonBlocking 全部 worker 阻塞时 Submit 立即返回池满，不等待
func TestPoolOverloadNonBlocking(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Release()

	release := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(func() {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	done := make(chan error, 1)
	go func() { done <- p.Submit(func() {}) }()
	select {
	case err := <-done:
		if !IsOverload(err) {
			t.Errorf("expected overload error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a saturated pool")
	}
	close(release)
}
