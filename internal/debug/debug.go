// Package debug provides low-volume diagnostic tracing for the core's
// internal decisions (migration application, collision phase selection,
// cache rebuild triggers). Gated by BD_DEBUG; BD_DEBUG_FILE additionally
// routes output to a rotating log file instead of stderr.
package debug

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	enabled = os.Getenv("BD_DEBUG") != ""
	fileLog *lumberjack.Logger
)

func init() {
	if path := os.Getenv("BD_DEBUG_FILE"); path != "" {
		fileLog = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		}
	}
}

func Enabled() bool {
	return enabled
}

func Logf(format string, args ...interface{}) {
	if !enabled {
		return
	}
	if fileLog != nil {
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		_, _ = fmt.Fprintf(fileLog, "[%s] "+format+"\n", append([]interface{}{timestamp}, args...)...)
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

func Printf(format string, args ...interface{}) {
	if enabled {
		fmt.Printf(format, args...)
	}
}
