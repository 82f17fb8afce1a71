package logging

import (
	"io"
	"os"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger   *logrus.Logger
	initOnce sync.Once
	seen     sync.Map
)

// Fields is a set of structured key/value pairs attached to a log entry
type Fields = logrus.Fields

// Logger returns shared engine logger
func Logger() *logrus.Logger {
	initOnce.Do(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&formatter.Formatter{
			NoColors:        true,
			TimestampFormat: "02 Jan 06 - 15:04:05",
			HideKeys:        false,
			FieldsOrder:     []string{"component", "track_id", "frame_id"},
		})
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// SetLevel changes minimal level of emitted entries
func SetLevel(level logrus.Level) {
	Logger().SetLevel(level)
}

// SetOutput redirects log entries to the given writer
func SetOutput(w io.Writer) {
	Logger().SetOutput(w)
}

// SetFile duplicates log entries into a size-rotated file (stderr output is kept).
// Sizes are in megabytes, ages in days.
func SetFile(filename string, maxSize, maxAge, maxBackups int) io.Closer {
	fileWriter := &lumberjack.Logger{
		Filename:   filename,
		LocalTime:  true,
		Compress:   true,
		MaxSize:    maxSize,
		MaxAge:     maxAge,
		MaxBackups: maxBackups,
	}
	Logger().SetOutput(io.MultiWriter(os.Stderr, fileWriter))
	return fileWriter
}

// Once returns true only for the first call with the given key during process lifetime
func Once(key string) bool {
	_, loaded := seen.LoadOrStore(key, struct{}{})
	return !loaded
}

func Debug(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	Logger().WithFields(fields).Debug(msg)
}

func Info(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	Logger().WithFields(fields).Info(msg)
}

func Warn(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	Logger().WithFields(fields).Warn(msg)
}

// WarnOnce emits warning only the first time the key is seen.
// Used for capability fallbacks which otherwise would repeat on every frame.
func WarnOnce(key string, fields Fields, msg string) {
	if !Once(key) {
		return
	}
	Warn(fields, msg)
}

func Error(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	Logger().WithFields(fields).Error(msg)
}
