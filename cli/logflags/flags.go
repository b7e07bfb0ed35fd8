// Package logflags configures the zap logger of a command.
package logflags

import (
	"errors"
	"flag"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Flags struct {
	Path  string
	Level zapcore.Level
	// MaxSize is the size in megabytes at which a log file is rotated.
	MaxSize int
	Dev     bool

	levelSet bool
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	f.Level = zapcore.InfoLevel
	fs.StringVar(&f.Path, "log", "", "path of log file (stderr if unset)")
	fs.Func("log.level", "logging level (default info)", func(s string) error {
		f.levelSet = true
		return f.Level.Set(s)
	})
	fs.IntVar(&f.MaxSize, "log.maxsize", 100, "size in megabytes at which the log file is rotated")
	fs.BoolVar(&f.Dev, "log.dev", false, "use development (console) log format")
}

// SetDefaultLevel sets the level unless it was given on the command line.
func (f *Flags) SetDefaultLevel(level zapcore.Level) {
	if !f.levelSet {
		f.Level = level
	}
}

// Open returns a logger writing to the configured path, rotated by
// lumberjack, or to stderr.
func (f *Flags) Open() (*zap.Logger, error) {
	if f.MaxSize < 0 {
		return nil, errors.New("log.maxsize must not be negative")
	}
	var w zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if f.Path != "" {
		w = zapcore.AddSync(&lumberjack.Logger{
			Filename: f.Path,
			MaxSize:  f.MaxSize,
		})
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(enc)
	if f.Dev {
		enc = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(enc)
	}
	core := zapcore.NewCore(encoder, w, zap.NewAtomicLevelAt(f.Level))
	return zap.New(core), nil
}
