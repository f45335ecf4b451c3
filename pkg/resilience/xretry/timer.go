package xretry

import (
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Timer 退避等待使用的计时器，即 retry-go 的 Timer 接口。
// 执行器的等待与 LazyCapabilities 的获取重试共用它，测试中可替换为立即返回的实现。
type Timer = retry.Timer

// realTimer 基于 time.After 的默认计时器
type realTimer struct{}

func (realTimer) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

var _ Timer = realTimer{}
