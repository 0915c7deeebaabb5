package logger

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.Mutex
	sugar   *zap.SugaredLogger
	logFile *os.File
)

const (
	INFO = iota
	DEBUG
)

// InitLogger initializes the logger with a file output and console output.
// An empty filename logs to the console only.
func InitLogger(filename string, level int) error {
	writers := []io.Writer{os.Stdout}
	var f *os.File
	if filename != "" {
		var err error
		f, err = os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	sugar = build(zapLevel(level), writers...)
	return nil
}

// SetOutput routes all log output to w. Used by tests to capture lines.
func SetOutput(w io.Writer, level int) {
	mu.Lock()
	defer mu.Unlock()
	sugar = build(zapLevel(level), w)
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if sugar != nil {
		_ = sugar.Sync()
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Init sets up a console-only logger.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	sugar = build(zapcore.InfoLevel, os.Stdout)
}

// Sugared returns the underlying logger, for libraries that take a
// key/value logger (cron, for example).
func Sugared() *zap.SugaredLogger {
	return get()
}

func build(level zapcore.Level, writers ...io.Writer) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := make([]zapcore.Core, 0, len(writers))
	for _, w := range writers {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

func zapLevel(level int) zapcore.Level {
	if level == DEBUG {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func get() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	if sugar == nil {
		sugar = build(zapcore.InfoLevel, os.Stdout)
	}
	return sugar
}

func Info(format string, v ...interface{}) {
	get().Infof(format, v...)
}

func Infof(format string, v ...interface{}) {
	get().Infof(format, v...)
}

func Debugf(format string, v ...interface{}) {
	get().Debugf(format, v...)
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
