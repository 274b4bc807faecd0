package zlog

import (
	"os"

	// 按大小、天数、备份数自动切分日志文件，旧文件可 gzip 压缩
	"gopkg.in/natefinch/lumberjack.v2"

	"go.uber.org/zap/zapcore"
)

// buildWriteSyncer 根据配置组装所有输出目标
func buildWriteSyncer(cfg Config) zapcore.WriteSyncer {
	var syncers []zapcore.WriteSyncer

	if cfg.Stdout {
		syncers = append(syncers, zapcore.AddSync(os.Stdout))
	}

	if p := cfg.File.Path; p != "" {
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   p,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxAge:     cfg.File.MaxAgeDay,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		}))
	}

	return zapcore.NewMultiWriteSyncer(syncers...)
}
