// Package logging 构造 logrus 日志器
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options 日志选项
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// New 按级别和格式创建日志器；无法识别的级别使用 info
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if opts.Output != nil {
		log.SetOutput(opts.Output)
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(opts.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
