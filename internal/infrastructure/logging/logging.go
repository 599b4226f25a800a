package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"loyaltysystem/internal/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup 安装 JSON 格式的默认 slog.Logger，并把标准库 log 桥接过去
// cfg.File 非空时同时写入按大小滚动的日志文件
func Setup(service string, cfg *config.LogConfig) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg != nil && strings.TrimSpace(cfg.File) != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	return New(out, service, cfg)
}

// New 基于指定 writer 构造 logger，测试中传入 bytes.Buffer
func New(out io.Writer, service string, cfg *config.LogConfig) *slog.Logger {
	level, env := slog.LevelInfo, ""
	if cfg != nil {
		level = ParseLevel(cfg.Level)
		env = strings.TrimSpace(cfg.Env)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", service)}
	if env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	withAttrs := handler.WithAttrs(attrs)

	base := slog.New(withAttrs)
	slog.SetDefault(base)

	// gin 等第三方库仍然使用标准库 log
	stdBridge := slog.NewLogLogger(withAttrs, slog.LevelInfo)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

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
