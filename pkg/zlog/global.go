package zlog

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// MustInitGlobal 创建 logger 并替换 zap 全局实例
func MustInitGlobal(cfg Config) {
	l, err := New(cfg)
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(l)
	setupSignalHandler()
}

// setupSignalHandler 监听 SIGHUP：debug 与 info 之间来回切换
func setupSignalHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP)
	go func() {
		for range c {
			if GetLevel() == "debug" {
				SetLevel("info")
			} else {
				SetLevel("debug")
			}
			zap.L().Info("log level toggled", zap.String("now", GetLevel()))
		}
	}()
}
