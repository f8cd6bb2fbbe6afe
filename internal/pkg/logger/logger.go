package logger

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志初始化选项。
type Options struct {
	Level      string // debug / info / warn / error
	Format     string // console / json
	FilePath   string // 为空时仅输出到 stderr
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	global   atomic.Pointer[zap.Logger]
	initOnce sync.Once
)

func init() {
	// 未显式 Init 时提供可用的兜底 logger，避免早期调用 panic。
	l, _ := zap.NewProduction()
	global.Store(l)
}

// Init 根据配置初始化全局 logger。重复调用仅首次生效。
func Init(opts Options) {
	initOnce.Do(func() {
		global.Store(build(opts))
	})
}

func build(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.Set(opts.Level); err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stderr)}
	if opts.FilePath != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 14),
			Compress:   true,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	return zap.New(core, zap.AddCaller())
}

// L 返回全局 logger。
func L() *zap.Logger {
	return global.Load()
}

// LegacyPrintf 兼容旧的 printf 风格日志调用，component 作为结构化字段附加。
// 新代码优先使用 L().With(...) 的结构化方式。
func LegacyPrintf(component, format string, args ...any) {
	global.Load().WithOptions(zap.AddCallerSkip(1)).
		With(zap.String("component", component)).
		Info(fmt.Sprintf(format, args...))
}

// ReplaceForTest 替换全局 logger，返回恢复函数。仅测试使用。
func ReplaceForTest(l *zap.Logger) func() {
	old := global.Swap(l)
	return func() { global.Store(old) }
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
