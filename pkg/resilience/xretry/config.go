package xretry

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/omeyang/xrpcretry/pkg/config/xconf"
)

// OptionsConfig 重试选项的配置文件形式（koanf 标签）。
//
// 时长使用 time.ParseDuration 格式（如 "100ms"、"1m"），
// 空字符串表示使用默认值。do_not_retry 为 gRPC 状态码名称列表。
//
//	retry:
//	  initial_interval: 100ms
//	  congestion_initial_interval: 1s
//	  maximum_interval: 1m
//	  backoff_coefficient: 1.7
//	  maximum_jitter_coefficient: 0.1
//	  maximum_attempts: 5
//	  expiration: 30s
//	  do_not_retry: [RESOURCE_EXHAUSTED]
type OptionsConfig struct {
	InitialInterval           string   `koanf:"initial_interval"`
	CongestionInitialInterval string   `koanf:"congestion_initial_interval"`
	MaximumInterval           string   `koanf:"maximum_interval"`
	BackoffCoefficient        *float64 `koanf:"backoff_coefficient"`
	MaximumJitterCoefficient  *float64 `koanf:"maximum_jitter_coefficient"`
	MaximumAttempts           int      `koanf:"maximum_attempts"`
	Expiration                string   `koanf:"expiration"`
	DoNotRetry                []string `koanf:"do_not_retry"`
}

// ToOptions 在默认选项之上应用配置并校验
func (c OptionsConfig) ToOptions() (Options, error) {
	o := DefaultOptions()

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"initial_interval", c.InitialInterval, &o.InitialInterval},
		{"congestion_initial_interval", c.CongestionInitialInterval, &o.CongestionInitialInterval},
		{"maximum_interval", c.MaximumInterval, &o.MaximumInterval},
		{"expiration", c.Expiration, &o.Expiration},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Options{}, invalidOptions("%s: %v", d.name, err)
		}
		*d.dst = v
	}

	if c.BackoffCoefficient != nil {
		o.BackoffCoefficient = *c.BackoffCoefficient
	}
	if c.MaximumJitterCoefficient != nil {
		o.MaximumJitterCoefficient = *c.MaximumJitterCoefficient
	}
	o.MaximumAttempts = c.MaximumAttempts

	for _, name := range c.DoNotRetry {
		code, err := ParseCode(name)
		if err != nil {
			return Options{}, invalidOptions("do_not_retry: %v", err)
		}
		o.DoNotRetry = append(o.DoNotRetry, DoNotRetryItem{Code: code})
	}

	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// LoadOptions 从 cfg 的 path 路径读取重试选项。
// path 为空时读取整个配置。缺失的键使用默认值。
func LoadOptions(cfg xconf.Config, path string) (Options, error) {
	if cfg == nil {
		return DefaultOptions(), nil
	}
	var oc OptionsConfig
	if err := cfg.Unmarshal(path, &oc); err != nil {
		return Options{}, fmt.Errorf("xretry: load options: %w", err)
	}
	return oc.ToOptions()
}

// codeNames 状态码名称表，同时接受 "UNAVAILABLE" 与 "Unavailable" 两种写法
var codeNames = func() map[string]codes.Code {
	m := make(map[string]codes.Code, 17)
	for c := codes.OK; c <= codes.Unauthenticated; c++ {
		m[strings.ToUpper(c.String())] = c
	}
	// codes.Code.String() 对 Canceled 返回 "Canceled"，gRPC 规范名为 CANCELLED
	m["CANCELLED"] = codes.Canceled
	return m
}()

// ParseCode 解析 gRPC 状态码名称（不区分大小写，允许下划线）
func ParseCode(name string) (codes.Code, error) {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "_", ""))
	for k, c := range codeNames {
		if strings.ReplaceAll(k, "_", "") == key {
			return c, nil
		}
	}
	return codes.Unknown, fmt.Errorf("unknown grpc code %q", name)
}
