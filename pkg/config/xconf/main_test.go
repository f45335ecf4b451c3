package xconf

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain 检测 Watcher 的 goroutine 泄漏
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
