package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"phRestore/internal/config"
)

// New 根据配置构造 slog.Logger。
// 配置了 File 时日志同时写入 stdout 与按大小滚动的文件。
func New(cfg config.LogConfig) *slog.Logger {
	return slog.New(NewHandler(cfg, os.Stdout))
}

// NewHandler 构造写入 out（以及可选滚动文件）的 slog.Handler。
func NewHandler(cfg config.LogConfig, out io.Writer) slog.Handler {
	if strings.TrimSpace(cfg.File) != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// ParseLevel 将字符串级别映射为 slog.Level，未知值回落到 Info。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
