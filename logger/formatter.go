package logger

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultTimestampFormat = time.RFC3339

// Formatter implements logrus.Formatter with a compact single-line layout:
//
//	15:04:05 [INFO] [Component:bridge] message
//
// Fields listed in FieldsOrder are rendered first, remaining fields follow
// alphabetically.
type Formatter struct {
	// TimestampFormat specifies the timestamp layout. Default: time.RFC3339.
	TimestampFormat string
	// NoColors disables ANSI level coloring (always disable for file output).
	NoColors bool
	// HideLevelBelowWarn suppresses the level tag for levels below WARN.
	HideLevelBelowWarn bool
	// FieldsOrder lists field keys to render before the rest.
	FieldsOrder []string
}

func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := &bytes.Buffer{}

	format := f.TimestampFormat
	if format == "" {
		format = defaultTimestampFormat
	}
	b.WriteString(entry.Time.Format(format))

	if showLevel := !f.HideLevelBelowWarn || entry.Level <= logrus.WarnLevel; showLevel {
		level := strings.ToUpper(entry.Level.String())
		if level == "WARNING" {
			level = "WARN"
		}
		if f.NoColors {
			fmt.Fprintf(b, " [%s]", level)
		} else {
			fmt.Fprintf(b, " \x1b[%dm[%s]\x1b[0m", levelColor(entry.Level), level)
		}
	}

	for _, key := range f.orderedKeys(entry.Data) {
		fmt.Fprintf(b, " [%s:%v]", key, entry.Data[key])
	}

	b.WriteString(" ")
	b.WriteString(strings.TrimSuffix(entry.Message, "\n"))
	b.WriteString("\n")

	return b.Bytes(), nil
}

func (f *Formatter) orderedKeys(data logrus.Fields) []string {
	if len(data) == 0 {
		return nil
	}

	keys := make([]string, 0, len(data))
	seen := make(map[string]bool, len(data))
	for _, key := range f.FieldsOrder {
		if _, ok := data[key]; ok && !seen[key] {
			keys = append(keys, key)
			seen[key] = true
		}
	}

	rest := make([]string, 0, len(data))
	for key := range data {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)

	return append(keys, rest...)
}

func levelColor(level logrus.Level) int {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return 37 // gray
	case logrus.WarnLevel:
		return 33 // yellow
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return 31 // red
	default:
		return 36 // cyan
	}
}
