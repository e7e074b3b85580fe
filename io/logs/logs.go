// Package logs mirrors everything written to stdout into a persistent log
// file when one is configured.
package logs

import (
	"fmt"
	"os"
	"strings"

	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var _ = logrus.Hook(&writerHook{})

// writerHook appends every fired entry to the file logger.
type writerHook struct {
	logLevels []logrus.Level
}

func (hook *writerHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	fileLogger.Println(strings.TrimSuffix(line, "\n"))
	return nil
}

func (hook *writerHook) Levels() []logrus.Level {
	return hook.logLevels
}

var fileLogger = &logrus.Logger{
	Level: logrus.TraceLevel,
}

// ConfigurePersistentLogging adds a log-to-file writer hook to the logrus
// logger. The hook appends new logs to the named file.
func ConfigurePersistentLogging(logFileName, logFileFormat string) error {
	logrus.WithField("logFileName", logFileName).Info("Logs will be made persistent")
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	fileLogger.SetOutput(f)

	switch logFileFormat {
	case "text":
		formatter := new(prefixed.TextFormatter)
		formatter.TimestampFormat = "2006-01-02 15:04:05"
		formatter.FullTimestamp = true
		formatter.DisableColors = true
		fileLogger.SetFormatter(formatter)
	case "fluentd":
		fileLogger.SetFormatter(joonix.NewFormatter())
	case "json":
		fileLogger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log file format %v", logFileFormat)
	}

	logrus.Info("File logger initialized")
	logrus.AddHook(&writerHook{logLevels: logrus.AllLevels})
	return nil
}
