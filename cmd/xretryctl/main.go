// xretryctl 是 xretry 的命令行工具：校验重试配置，并通过 gRPC 健康检查探测服务。
//
// 用法:
//
//	xretryctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	--log-level    日志级别 debug/info/warn/error (默认: info)
//	--log-format   日志格式 text/json (默认: text)
//	--log-file     日志文件路径，按大小轮转；为空时输出到 stderr
//
// 命令:
//
//	validate       校验配置文件中的 retry 段并打印生效的选项
//	probe          调用 grpc.health.v1.Health/Check，失败时按重试选项重试
//
// 退出码:
//
//	0: 成功（probe: 服务 SERVING）
//	1: 探测失败
//	2: 参数或配置错误
//
// 示例:
//
//	xretryctl validate --config retry.yaml
//	xretryctl probe --target localhost:50051 --timeout 2s
//	xretryctl --log-level debug probe --config retry.yaml --watch --interval 10s
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xrpcretry/pkg/observability/xlog"
)

// 版本信息，可通过 -ldflags "-X main.Version=..." 注入
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// 退出码
const (
	exitOK         = 0
	exitProbeFail  = 1
	exitUsageError = 2
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "xretryctl",
		Usage:     "gRPC 重试配置校验与健康探测",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "日志格式 (text/json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "日志文件路径（按大小轮转），为空时输出到 stderr",
			},
		},
		Commands: []*cli.Command{
			createValidateCommand(),
			createProbeCommand(),
		},
		// 退出码由 run 统一映射，不让 urfave/cli 直接 os.Exit
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(stderr, err)
			}
		},
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp(stdout, stderr)

	if err := app.Run(ctx, args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
			return exitUsageError
		}
		if isCLIUsageError(err) {
			fmt.Fprintf(stderr, "参数错误: %v\n", err)
			return exitUsageError
		}
		fmt.Fprintf(stderr, "错误: %v\n", err)
		return exitProbeFail
	}
	return exitOK
}

// exitError 命令已完成输出，只需设置退出码
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 参数或配置错误，退出码 2
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// isCLIUsageError 识别 urfave/cli 解析阶段产生的错误（未知 flag、非法取值）
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, s := range []string{
		"flag provided but not defined",
		"invalid value",
		"No help topic",
		"Required flag",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// setupLogger 按全局 flag 构建 logger 并设为默认 logger
func setupLogger(cmd *cli.Command) (xlog.Logger, func() error, error) {
	b := xlog.New().
		SetLevelString(cmd.String("log-level")).
		SetFormat(cmd.String("log-format"))
	if path := cmd.String("log-file"); path != "" {
		b.SetRotation(path, xlog.WithMaxBackups(3))
	}
	logger, cleanup, err := b.Build()
	if err != nil {
		return nil, nil, &usageError{err: err}
	}
	xlog.SetDefault(logger)
	return logger, cleanup, nil
}

// setupSignalHandler 第一次信号取消 ctx，第二次强制退出（130 = 128 + SIGINT）
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
