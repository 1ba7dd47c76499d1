// Package optimize 提供优化配置和推荐
package optimize

import (
	"runtime"
	"time"

	"github.com/uniyakcom/uring/core"
)

// Profile 优化场景Profile
type Profile struct {
	Name        string        // 场景名称
	Mode        core.Mode     // 轮询模式
	Conc        int           // 预期在途操作数（决定提交队列容量）
	Lat         string        // "low"/"med"/"ultra_low"
	Cores       int           // CPU核心数
	SQEntries   uint64        // 显式提交队列容量（0 = 由 Conc 推导）
	CQEntries   uint64        // 显式完成队列容量（0 = 2×SQ）
	IdleTimeout time.Duration // QueuePoll 空闲超时（0 = 默认 10ms）
	Workers     int           // >0 池大小；0 = 平台默认；<0 内联
	Shared      bool          // 多 goroutine 共用提交队列（仅 Submit / SubmitOps）
}

// ═══════════════════════════════════════════════════════════════════
// 四个核心 Profile
// ═══════════════════════════════════════════════════════════════════

// OnDemand 按需穿越场景
// 用途: 批量文件读写、请求/响应式服务、测试
// 特点: 无后台 goroutine，Notify 同步分发，Wait 一次阻塞收割
func OnDemand() *Profile {
	return &Profile{
		Name:  "ondemand",
		Mode:  core.ModeOnDemand,
		Conc:  256,
		Lat:   "med",
		Cores: runtime.NumCPU(),
	}
}

// QueuePoll 后台提交队列轮询场景
// 用途: 长连接服务、持续提交的流水线
// 特点: 活跃期零穿越提交，空闲超时后睡眠，Notify 唤醒
func QueuePoll() *Profile {
	return &Profile{
		Name:        "qpoll",
		Mode:        core.ModeQueuePoll,
		Conc:        1024,
		Lat:         "low",
		Cores:       runtime.NumCPU(),
		IdleTimeout: 10 * time.Millisecond,
	}
}

// BusyPoll 完成忙轮询场景
// 用途: 设备轮询后端、极致延迟
// 特点: 后台 goroutine 持续收割完成，独占一个核
func BusyPoll() *Profile {
	return &Profile{
		Name:  "busypoll",
		Mode:  core.ModeBusyPoll,
		Conc:  1024,
		Lat:   "ultra_low",
		Cores: runtime.NumCPU(),
	}
}

// Hybrid 提交轮询 + 完成忙轮询
// 特点: 提交与完成两侧均无穿越，占用两个后台 goroutine
func Hybrid() *Profile {
	return &Profile{
		Name:        "hybrid",
		Mode:        core.ModeHybrid,
		Conc:        4096,
		Lat:         "ultra_low",
		Cores:       runtime.NumCPU(),
		IdleTimeout: 10 * time.Millisecond,
	}
}

// ═══════════════════════════════════════════════════════════════════
// Presets
// ═══════════════════════════════════════════════════════════════════

// Presets 所有预设场景
var Presets = map[string]*Profile{
	"ondemand": OnDemand(),
	"qpoll":    QueuePoll(),
	"busypoll": BusyPoll(),
	"hybrid":   Hybrid(),
}

// Preset 获取预设Profile
func Preset(name string) *Profile {
	if p, ok := Presets[name]; ok {
		// 返回副本，避免共享状态
		cp := *p
		return &cp
	}
	return OnDemand() // 默认使用 ondemand 场景
}

// ═════════════════════════════════════════════════════════════════
// 自动检测
// ═════════════════════════════════════════════════════════════════

// AutoDetect 根据运行时环境自动选择轮询模式
//   - 多核 (>= 4 cores) → QueuePoll（后台轮询占用一个核）
//   - 少核 (< 4 cores ) → OnDemand
//
// BusyPoll / Hybrid 不会被自动选择，需显式指定。
func AutoDetect() *Profile {
	cores := runtime.NumCPU()
	p := OnDemand()
	if cores >= 4 {
		p = QueuePoll()
	}
	p.Name = "auto"
	p.Cores = cores
	return p
}
