// Package sys 提供系统调用执行器：每个操作在执行 goroutine 上同步调用
// golang.org/x/sys/unix，结果按内核约定编码（成功为字节数 / 新句柄，失败为 -errno）。
//
// 套接字操作先用 poll(2) 等待就绪，等待期间按 pollSlice 切片检查 ctx，
// 因此取消与引擎关闭能打断阻塞中的 accept / recv / send。
// 文件读写不可取消（一次系统调用即返回）。
//
// 仅 Linux 可用；其他平台 New 返回 core.ErrNotSupported。
package sys

import "time"

// pollSlice 等待就绪时单次 poll 的最长阻塞
const pollSlice = 20 * time.Millisecond
