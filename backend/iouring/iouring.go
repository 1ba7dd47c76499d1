// Package iouring 把操作转交 Linux 内核 io_uring（github.com/iceber/iouring-go）。
//
// 引擎负责批量、链、multishot 与完成额度，这里每个操作独立提交到内核环，
// 执行 goroutine 等待该请求完成；ctx 取消时向内核发出取消请求并等待目标完成，
// 保证返回后内核不再访问缓冲区。
//
// 支持: read / write（含 OffCurrent）、fsync、send、recv。其余操作码返回 ResNotSupported。
package iouring

// Config 内核环配置
type Config struct {
	Entries uint // 内核提交队列深度（默认 256）
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Entries: 256}
}
