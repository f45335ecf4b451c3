// Package xconf 基于 koanf 的配置加载。
//
// 支持 YAML 与 JSON，可从文件（New）或字节数据（NewFromBytes，如 K8s ConfigMap）创建。
// 从文件创建的配置可以 Reload，也可以用 Watch 监视文件变更并自动重载。
//
//	cfg, err := xconf.New("/etc/xretryctl/config.yaml")
//	if err != nil {
//	    return err
//	}
//	var rc struct {
//	    Target string `koanf:"target"`
//	}
//	if err := cfg.Unmarshal("probe", &rc); err != nil {
//	    return err
//	}
//
// Reload 解析失败时保留旧配置，Unmarshal 与 Reload 可并发调用。
package xconf
