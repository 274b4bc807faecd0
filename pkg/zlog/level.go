package zlog

import (
	"net/http"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	dynamicLevel = zap.NewAtomicLevel() // 全局可变级别，New 之前也可以安全调用 SetLevel
	levelName    atomic.Value           // 字符串形式
)

func initLevel(lvl string) {
	levelName.Store(lvl)
	dynamicLevel.SetLevel(parseLevel(lvl))
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "panic":
		return zap.PanicLevel
	default:
		return zap.InfoLevel
	}
}

// SetLevel 热更新日志级别，未知级别按 info 处理
func SetLevel(lvl string) {
	lvl = strings.ToLower(lvl)
	l := parseLevel(lvl)
	dynamicLevel.SetLevel(l)
	levelName.Store(l.String())
}

// GetLevel 返回当前级别字符串
func GetLevel() string {
	if v, ok := levelName.Load().(string); ok {
		return v
	}
	return "info"
}

// LevelHTTPHandler 挂到 /log/level：GET 返回当前级别，PUT ?v=debug 修改级别
func LevelHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			lvl := r.URL.Query().Get("v")
			if lvl == "" {
				lvl = r.FormValue("v")
			}
			if lvl == "" {
				http.Error(w, "missing level", http.StatusBadRequest)
				return
			}
			SetLevel(lvl)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(GetLevel()))
			return
		}
		_, _ = w.Write([]byte(GetLevel()))
	}
}
