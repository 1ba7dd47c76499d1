package optimize

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// 环境变量
const (
	EnvMode        = "URING_MODE"
	EnvSQEntries   = "URING_SQ_ENTRIES"
	EnvCQEntries   = "URING_CQ_ENTRIES"
	EnvIdleTimeout = "URING_IDLE_TIMEOUT"
	EnvWorkers     = "URING_WORKERS"
)

// FromEnv 从环境变量构造 Profile
//
// files 非空时先用 godotenv 读取这些 .env 文件；文件中的值优先于进程环境，
// 但不会写回进程环境。URING_MODE 选择预设（缺省 AutoDetect），
// 其余变量覆盖预设字段。
func FromEnv(files ...string) (*Profile, error) {
	vars := map[string]string{}
	if len(files) > 0 {
		m, err := godotenv.Read(files...)
		if err != nil {
			return nil, fmt.Errorf("optimize: load env: %w", err)
		}
		vars = m
	}
	get := func(key string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		return os.Getenv(key)
	}

	var p *Profile
	if name := get(EnvMode); name != "" {
		if _, ok := Presets[name]; !ok {
			return nil, fmt.Errorf("optimize: %s=%q: unknown preset", EnvMode, name)
		}
		p = Preset(name)
	} else {
		p = AutoDetect()
	}

	if v := get(EnvSQEntries); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("optimize: %s: %w", EnvSQEntries, err)
		}
		p.SQEntries = n
	}
	if v := get(EnvCQEntries); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("optimize: %s: %w", EnvCQEntries, err)
		}
		p.CQEntries = n
	}
	if v := get(EnvIdleTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("optimize: %s: %w", EnvIdleTimeout, err)
		}
		p.IdleTimeout = d
	}
	if v := get(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("optimize: %s: %w", EnvWorkers, err)
		}
		p.Workers = n
	}
	return p, nil
}
