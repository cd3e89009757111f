package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Log is the global logger. It discards everything until InitLogger runs.
	Log *zap.SugaredLogger
	// JSONOutput records whether InitLogger selected the JSON encoder.
	JSONOutput bool
)

func init() {
	Log = zap.NewNop().Sugar()
}

// InitLogger sets up the global logger writing to stdout. level is one of
// DEBUG, INFO, WARN, ERROR (case insensitive); format is "text" or "json".
func InitLogger(level, format string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}

	JSONOutput = strings.EqualFold(format, "json")

	var enc zapcore.Encoder
	if JSONOutput {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeCaller = nil
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(lvl))
	Log = zap.New(core).Sugar()
	return nil
}

// Close flushes buffered entries.
func Close() {
	_ = Log.Sync()
}

func Info(format string, v ...interface{}) {
	Log.Infof(format, v...)
}

func Infof(format string, v ...interface{}) {
	Info(format, v...)
}

// Infow logs a message with structured key-value pairs.
func Infow(msg string, keysAndValues ...interface{}) {
	Log.Infow(msg, keysAndValues...)
}

func Debugw(msg string, keysAndValues ...interface{}) {
	Log.Debugw(msg, keysAndValues...)
}

func Error(format string, v ...interface{}) {
	Log.Errorf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	Error(format, v...)
}

func Warn(format string, v ...interface{}) {
	Log.Warnf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	Warn(format, v...)
}
