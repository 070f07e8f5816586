package config

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// NewLogger 按级别创建带前缀的日志器，输出到 stderr
func NewLogger(prefix, level string) (*log.Logger, error) {
	return newLogger(os.Stderr, prefix, level)
}

func newLogger(w io.Writer, prefix, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("日志级别 %q: %w", level, err)
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          prefix,
		Level:           lvl,
	}), nil
}

// ShowNetLogger showNet 大于 0 时把日志器调到 debug 级别
func ShowNetLogger(logger *log.Logger, showNet int) *log.Logger {
	if showNet <= 0 {
		return logger
	}
	l := logger.With()
	l.SetLevel(log.DebugLevel)
	return l
}

func validateLevel(level string) error {
	if _, err := log.ParseLevel(level); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}
