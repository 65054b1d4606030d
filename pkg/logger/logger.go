package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	base    *zap.Logger
	sugar   *zap.SugaredLogger
	logFile *os.File
)

// InitLogger logs to stderr and, when filename is set, appends to that file.
// level is one of debug, info, warn, error.
func InitLogger(filename string, level string) error {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil && level != "" {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), lvl),
	}

	var f *os.File
	if filename != "" {
		var err error
		f, err = os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), lvl))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	base, sugar, logFile = l, l.Sugar(), f
	return nil
}

// Use installs an existing zap logger, e.g. zaptest or zap.NewNop in tests.
func Use(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base, sugar = l.WithOptions(zap.AddCallerSkip(1)), l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if base != nil {
		_ = base.Sync()
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Init installs a development console logger.
func Init() {
	l, err := zap.NewDevelopment(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	base, sugar = l, l.Sugar()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	if s == nil {
		Init()
		mu.RLock()
		s = sugar
		mu.RUnlock()
	}
	return s
}

func Debugf(format string, v ...interface{}) {
	get().Debugf(format, v...)
}

func Info(format string, v ...interface{}) {
	get().Infof(format, v...)
}

func Infof(format string, v ...interface{}) {
	get().Infof(format, v...)
}

func Error(format string, v ...interface{}) {
	get().Errorf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	get().Errorf(format, v...)
}

func Warn(format string, v ...interface{}) {
	get().Warnf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	get().Warnf(format, v...)
}
