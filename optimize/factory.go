// Package optimize factory工厂
package optimize

import (
	"log/slog"

	"github.com/uniyakcom/uring/core"
	"github.com/uniyakcom/uring/internal/engine"
)

// Build 根据推荐配置构建引擎
func Build(advised *Advised, exec core.Executor, logger *slog.Logger, mws ...core.Middleware) (*engine.Engine, error) {
	cfg := engine.DefaultConfig()
	cfg.Mode = advised.Mode
	cfg.SQEntries = advised.SQEntries
	cfg.CQEntries = advised.CQEntries
	if advised.IdleTimeout > 0 {
		cfg.IdleTimeout = advised.IdleTimeout
	}
	cfg.Spin = advised.Spin
	cfg.Workers = advised.Workers
	cfg.SharedSubmit = advised.Shared
	cfg.Executor = exec
	cfg.Middlewares = mws
	cfg.Logger = logger
	return engine.New(cfg)
}
