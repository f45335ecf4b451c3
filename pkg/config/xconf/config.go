package xconf

import "github.com/knadh/koanf/v2"

// Format 配置文件格式
type Format string

// 支持的配置格式
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Config 配置接口
//
// 只提供加载、反序列化与重载，其余读取操作直接使用 Client() 返回的 koanf 实例。
type Config interface {
	// Client 返回当前的 koanf 实例。Reload 后返回新实例，不要长期持有。
	Client() *koanf.Koanf

	// Unmarshal 将 path 下的配置反序列化到 target，path 为空时反序列化整个配置。
	Unmarshal(path string, target any) error

	// Reload 从文件重新加载，从字节数据创建的 Config 返回 ErrNotReloadable。
	// 解析失败时保留旧配置。
	Reload() error

	// Path 返回配置文件路径，从字节数据创建时为空
	Path() string

	Format() Format
}

// Option 配置加载选项
type Option func(*options)

type options struct {
	delim string
	tag   string
}

func defaultOptions() *options {
	return &options{delim: ".", tag: "koanf"}
}

// WithDelim 设置键分隔符，默认 "."
func WithDelim(delim string) Option {
	return func(o *options) {
		if delim != "" {
			o.delim = delim
		}
	}
}

// WithTag 设置结构体标签名，默认 "koanf"
func WithTag(tag string) Option {
	return func(o *options) {
		if tag != "" {
			o.tag = tag
		}
	}
}
