package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"github.com/mensylisir/sshbridge/common"
)

// Log is the global logger instance. It defaults to a stderr console logger
// so packages can log before Init runs; Init replaces the configuration.
var Log = newConsoleLogger(logrus.InfoLevel)

// Init configures the global logger.
//
// Console output always goes to stderr: stdout carries the JSON-RPC protocol
// stream and must stay clean. When outputDir is non-empty, log entries are
// additionally written to a daily-rotated file under that directory.
func Init(outputDir string, verbose bool) error {
	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}

	log := newConsoleLogger(level)

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create log output directory %s: %w", outputDir, err)
		}
		logFilePath := filepath.Join(outputDir, common.AppName+".log")

		writer, err := rotatelogs.New(
			logFilePath+".%Y%m%d",
			rotatelogs.WithLinkName(logFilePath),
			rotatelogs.WithMaxAge(7*24*time.Hour),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			return fmt.Errorf("failed to initialize rotatelogs for %s: %w", logFilePath, err)
		}

		fileFormatter := &Formatter{
			TimestampFormat: "2006-01-02 15:04:05.000 MST",
			NoColors:        true,
			FieldsOrder:     defaultFieldsOrder(),
		}

		writers := lfshook.WriterMap{}
		for _, lvl := range logrus.AllLevels {
			if log.IsLevelEnabled(lvl) {
				writers[lvl] = writer
			}
		}
		log.Hooks.Add(lfshook.NewHook(writers, fileFormatter))
	}

	*Log = *log
	return nil
}

// SetOutput redirects console output, primarily for tests.
func SetOutput(w io.Writer) {
	Log.SetOutput(w)
}

func newConsoleLogger(level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&Formatter{
		TimestampFormat:    "15:04:05",
		HideLevelBelowWarn: false,
		FieldsOrder:        defaultFieldsOrder(),
	})
	return log
}

func defaultFieldsOrder() []string {
	return []string{common.ComponentName, common.RequestID, common.ToolName, common.HostName}
}
