package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/omeyang/xrpcretry/pkg/config/xconf"
	"github.com/omeyang/xrpcretry/pkg/observability/xlog"
	"github.com/omeyang/xrpcretry/pkg/observability/xmetrics"
	"github.com/omeyang/xrpcretry/pkg/resilience/xretry"
)

const (
	defaultAttemptTimeout = 2 * time.Second
	defaultWatchInterval  = 5 * time.Second

	retrySection = "retry"
	probeSection = "probe"
	checkMethod  = "/grpc.health.v1.Health/Check"
)

// fileConfig 配置文件中 probe 段，命令行 flag 优先
type fileConfig struct {
	Target  string `koanf:"target"`
	Service string `koanf:"service"`
}

func createValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "校验配置文件中的 retry 段并打印生效的选项",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径 (.yaml/.yml/.json)",
			},
		},
		Action: cmdValidate,
	}
}

func cmdValidate(ctx context.Context, cmd *cli.Command) error {
	logger, cleanup, err := setupLogger(cmd.Root())
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	path := cmd.String("config")
	if path == "" {
		return usageErrorf("--config is required")
	}
	_, opts, err := loadConfig(path)
	if err != nil {
		logger.Warn(ctx, "invalid retry config", xlog.Component("xretryctl"), slog.String("config", path), xlog.Err(err))
		return err
	}
	logger.Debug(ctx, "retry config valid", xlog.Component("xretryctl"), slog.String("config", path))
	printOptions(cmd.Root().Writer, opts)
	return nil
}

func createProbeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "调用 grpc.health.v1.Health/Check，按重试选项重试",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "target",
				Aliases: []string{"t"},
				Usage:   "gRPC 目标地址（如 localhost:50051、dns:///svc:443）",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径，读取 retry 与 probe 段",
			},
			&cli.StringFlag{
				Name:  "service",
				Usage: "健康检查的服务名，空表示整体状态",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "单次尝试超时，0 表示不限",
				Value: defaultAttemptTimeout,
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "持续探测，配置文件变更时自动重载，直到收到 SIGINT/SIGTERM",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "--watch 模式下的探测间隔",
				Value: defaultWatchInterval,
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "退出前打印探测指标汇总",
			},
		},
		Action: cmdProbe,
	}
}

// loadConfig 加载配置文件并解析重试选项
func loadConfig(path string) (xconf.Config, xretry.Options, error) {
	cfg, err := xconf.New(path)
	if err != nil {
		return nil, xretry.Options{}, &usageError{err: err}
	}
	opts, err := xretry.LoadOptions(cfg, retrySection)
	if err != nil {
		return nil, xretry.Options{}, &usageError{err: err}
	}
	return cfg, opts, nil
}

func printOptions(w io.Writer, o xretry.Options) {
	fmt.Fprintf(w, "initial_interval: %s\n", o.InitialInterval)
	fmt.Fprintf(w, "congestion_initial_interval: %s\n", o.CongestionInitialInterval)
	fmt.Fprintf(w, "maximum_interval: %s\n", o.MaximumInterval)
	fmt.Fprintf(w, "backoff_coefficient: %g\n", o.BackoffCoefficient)
	fmt.Fprintf(w, "maximum_jitter_coefficient: %g\n", o.MaximumJitterCoefficient)
	fmt.Fprintf(w, "maximum_attempts: %d\n", o.MaximumAttempts)
	fmt.Fprintf(w, "expiration: %s\n", o.Expiration)
	names := make([]string, 0, len(o.DoNotRetry))
	for _, item := range o.DoNotRetry {
		names = append(names, item.Code.String())
	}
	fmt.Fprintf(w, "do_not_retry: [%s]\n", strings.Join(names, ", "))
}

// probeRequest 一次 probe 命令的参数
type probeRequest struct {
	target   string
	service  string
	timeout  time.Duration
	watch    bool
	interval time.Duration
}

func cmdProbe(ctx context.Context, cmd *cli.Command) error {
	logger, cleanup, err := setupLogger(cmd.Root())
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	req := probeRequest{
		target:   cmd.String("target"),
		service:  cmd.String("service"),
		timeout:  cmd.Duration("timeout"),
		watch:    cmd.Bool("watch"),
		interval: cmd.Duration("interval"),
	}

	var cfg xconf.Config
	opts := xretry.DefaultOptions()
	if path := cmd.String("config"); path != "" {
		if cfg, opts, err = loadConfig(path); err != nil {
			return err
		}
		var fc fileConfig
		if err := cfg.Unmarshal(probeSection, &fc); err != nil {
			return &usageError{err: err}
		}
		if req.target == "" {
			req.target = fc.Target
		}
		if req.service == "" {
			req.service = fc.Service
		}
	}
	if req.target == "" {
		return usageErrorf("--target is required (or probe.target in --config)")
	}
	if req.timeout < 0 {
		return usageErrorf("--timeout must not be negative")
	}
	if req.watch && req.interval <= 0 {
		return usageErrorf("--interval must be positive")
	}

	var (
		observer xmetrics.Observer = xmetrics.NoopObserver{}
		reader   *sdkmetric.ManualReader
	)
	if cmd.Bool("metrics") {
		reader = sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer func() { _ = mp.Shutdown(context.WithoutCancel(ctx)) }()
		if observer, err = xmetrics.NewOTelObserver(xmetrics.WithMeterProvider(mp)); err != nil {
			return err
		}
	}

	conn, err := grpc.NewClient(req.target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return usageErrorf("dial %s: %w", req.target, err)
	}
	defer func() { _ = conn.Close() }()

	p := &prober{
		client:  grpc_health_v1.NewHealthClient(conn),
		retryer: xretry.NewRetryer(xretry.WithLogger(logger), xretry.WithObserver(observer), xretry.WithOperation(checkMethod)),
		out:     cmd.Root().Writer,
		req:     req,
	}
	p.opts.Store(&opts)

	var ok bool
	if req.watch {
		ok, err = p.watch(ctx, cfg, logger)
	} else {
		ok = p.probe(ctx)
	}
	if reader != nil {
		printMetrics(cmd.Root().Writer, reader)
	}
	if err != nil {
		return err
	}
	if !ok {
		return &exitError{code: exitProbeFail}
	}
	return nil
}

// prober 持有探测所需的连接与当前重试选项
type prober struct {
	client  grpc_health_v1.HealthClient
	retryer *xretry.Retryer
	out     io.Writer
	req     probeRequest
	opts    atomic.Pointer[xretry.Options]
}

// probe 执行一次带重试的健康检查并打印结果，返回服务是否 SERVING
func (p *prober) probe(ctx context.Context) bool {
	out := xretry.Execute(ctx, p.retryer, xretry.StaticCapabilities{},
		func(ctx context.Context) (*grpc_health_v1.HealthCheckResponse, error) {
			if p.req.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, p.req.timeout)
				defer cancel()
			}
			return p.client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: p.req.service})
		}, *p.opts.Load())

	if !out.OK() {
		fmt.Fprintf(p.out, "%s outcome=%s attempts=%d error=%q\n", p.req.target, out.Kind, out.Attempts, out.Err)
		return false
	}
	st := out.Value.GetStatus()
	fmt.Fprintf(p.out, "%s status=%s outcome=%s attempts=%d\n", p.req.target, st, out.Kind, out.Attempts)
	return st == grpc_health_v1.HealthCheckResponse_SERVING
}

// watch 按间隔持续探测直到 ctx 结束，返回最后一次探测结果
func (p *prober) watch(ctx context.Context, cfg xconf.Config, logger xlog.Logger) (bool, error) {
	if cfg != nil {
		w, err := xconf.Watch(ctx, cfg, func(c xconf.Config, err error) {
			if err == nil {
				var opts xretry.Options
				if opts, err = xretry.LoadOptions(c, retrySection); err == nil {
					p.opts.Store(&opts)
					logger.Info(ctx, "retry options reloaded", xlog.Component("xretryctl"))
					return
				}
			}
			// 重载失败时沿用旧选项
			logger.Warn(ctx, "config reload failed", xlog.Component("xretryctl"), xlog.Err(err))
		})
		if err != nil {
			return false, err
		}
		defer func() { _ = w.Stop() }()
	}

	ticker := time.NewTicker(p.req.interval)
	defer ticker.Stop()

	ok := p.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return ok, nil
		case <-ticker.C:
			res := p.probe(ctx)
			// 退出过程中被打断的探测不计入结果
			if shuttingDown(ctx) {
				return ok, nil
			}
			ok = res
		}
	}
}

// shuttingDown ctx 已结束或截止时间已过。
// gRPC 自己的截止计时器可能先于 ctx.Done() 触发，此时 ctx.Err() 仍为 nil。
func shuttingDown(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	deadline, ok := ctx.Deadline()
	return ok && !time.Now().Before(deadline)
}

// printMetrics 打印 ManualReader 收集到的指标
func printMetrics(w io.Writer, reader *sdkmetric.ManualReader) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		fmt.Fprintf(w, "metrics: %v\n", err)
		return
	}
	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			lines = append(lines, summarize(m)...)
		}
	}
	slices.Sort(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

func summarize(m metricdata.Metrics) []string {
	var lines []string
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range data.DataPoints {
			lines = append(lines, fmt.Sprintf("%s{%s} %d", m.Name, labelsOf(dp.Attributes), dp.Value))
		}
	case metricdata.Histogram[float64]:
		for _, dp := range data.DataPoints {
			lines = append(lines, fmt.Sprintf("%s{%s} count=%d sum=%.3f", m.Name, labelsOf(dp.Attributes), dp.Count, dp.Sum))
		}
	case metricdata.Histogram[int64]:
		for _, dp := range data.DataPoints {
			lines = append(lines, fmt.Sprintf("%s{%s} count=%d sum=%d", m.Name, labelsOf(dp.Attributes), dp.Count, dp.Sum))
		}
	}
	return lines
}

// summaryKeys 汇总中按结束方式与状态分组
var summaryKeys = []attribute.Key{"outcome", "status"}

func labelsOf(set attribute.Set) string {
	labels := make([]string, 0, len(summaryKeys))
	for _, k := range summaryKeys {
		if v, ok := set.Value(k); ok {
			labels = append(labels, string(k)+"="+v.Emit())
		}
	}
	return strings.Join(labels, ",")
}
