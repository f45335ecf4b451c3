package xconf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce 默认防抖时间
const DefaultDebounce = 100 * time.Millisecond

// ChangeFunc 配置变更回调。err 非 nil 表示重载失败或监视出错，此时 cfg 仍为旧配置。
type ChangeFunc func(cfg Config, err error)

// WatchOption 监视选项
type WatchOption func(*Watcher)

// WithDebounce 设置防抖时间，窗口内的多次变更只触发一次重载
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher 配置文件监视器
type Watcher struct {
	cfg      Config
	fs       *fsnotify.Watcher
	onChange ChangeFunc
	debounce time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	closeErr error
}

// Watch 监视 cfg 的文件并在变更时自动 Reload，随后调用 onChange。
//
// 监视在后台 goroutine 中运行，ctx 结束或调用 Stop 后退出。
// 监视的是文件所在目录，编辑器先删除再创建的保存方式也能感知。
//
//	w, err := xconf.Watch(ctx, cfg, func(c xconf.Config, err error) {
//	    if err != nil {
//	        return
//	    }
//	    opts, _ = xretry.LoadOptions(c, "retry")
//	})
//	defer w.Stop()
func Watch(ctx context.Context, cfg Config, onChange ChangeFunc, opts ...WatchOption) (*Watcher, error) {
	if cfg == nil || cfg.Path() == "" {
		return nil, ErrNotWatchable
	}
	if ctx == nil {
		ctx = context.Background()
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xconf: create watcher: %w", err)
	}
	dir := filepath.Dir(cfg.Path())
	if err := fs.Add(dir); err != nil {
		return nil, errors.Join(fmt.Errorf("xconf: watch %s: %w", dir, err), fs.Close())
	}

	w := &Watcher{
		cfg:      cfg,
		fs:       fs,
		onChange: onChange,
		debounce: DefaultDebounce,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	go w.run(ctx)
	return w, nil
}

// Stop 停止监视并等待后台 goroutine 退出，可重复调用
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
	return w.closeErr
}

// Done 后台 goroutine 退出后关闭
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer func() { w.closeErr = w.fs.Close() }()

	name := filepath.Base(w.cfg.Path())
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !relevant(ev, name) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			w.notify(w.cfg.Reload())

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.notify(fmt.Errorf("xconf: watch: %w", err))
		}
	}
}

// relevant Write/Create/Rename 都可能意味着内容更新（原子写入是写临时文件再 rename）
func relevant(ev fsnotify.Event, name string) bool {
	if filepath.Base(ev.Name) != name {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) notify(err error) {
	if w.onChange != nil {
		w.onChange(w.cfg, err)
	}
}
