// Package errtrack 封装 Sentry 上报；未配置 DSN 时全部为空操作。
package errtrack

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

var enabled bool

// Init 初始化 Sentry；dsn 为空时不启用
func Init(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	}); err != nil {
		return err
	}
	enabled = true
	return nil
}

// Capture 上报错误；ctx 中若已有 hub 则沿用
func Capture(ctx context.Context, err error) {
	if !enabled || err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}

// Recover 上报 panic 值
func Recover(ctx context.Context, v interface{}) {
	if !enabled {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.Recover(v)
}

func Flush(timeout time.Duration) {
	if enabled {
		sentry.Flush(timeout)
	}
}
