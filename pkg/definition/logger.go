// Package definition holds the default implementations of the
// collaborator interfaces declared in pkg/types: the logger and the
// metrics sinks. cmd/node and the test harness use them; a caller is
// free to supply its own, the way the teacher's own
// definition.NewDefaultLogger is one option, not the only one.
package definition

import (
	"github.com/sirupsen/logrus"

	"github.com/jabolina-labs/dolev-brb-rco/pkg/types"
)

// LogrusLogger backs types.Logger with github.com/sirupsen/logrus. The
// teacher's own go.mod already pulls logrus in indirectly (as a
// dependency of one of its other tools); this promotes it to a direct,
// exercised dependency, because every layer in this stack logs a
// node_id/msg_id/phase triple on nearly every line and the teacher's
// own fmt.Sprintf-based DefaultLogger has no good way to carry that
// structure without repeating it in every call site.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger builds the default logger for a process, tagging
// every line with its node id.
func NewLogrusLogger(self types.ProcessID) *LogrusLogger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &LogrusLogger{entry: l.WithField("node_id", self)}
}

func (l *LogrusLogger) WithFields(fields types.Fields) types.Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *LogrusLogger) Info(v ...interface{})                 { l.entry.Info(v...) }
func (l *LogrusLogger) Infof(format string, v ...interface{}) { l.entry.Infof(format, v...) }
func (l *LogrusLogger) Warn(v ...interface{})                 { l.entry.Warn(v...) }
func (l *LogrusLogger) Warnf(format string, v ...interface{}) { l.entry.Warnf(format, v...) }
func (l *LogrusLogger) Error(v ...interface{})                { l.entry.Error(v...) }
func (l *LogrusLogger) Errorf(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}
func (l *LogrusLogger) Debug(v ...interface{})                 { l.entry.Debug(v...) }
func (l *LogrusLogger) Debugf(format string, v ...interface{}) { l.entry.Debugf(format, v...) }
func (l *LogrusLogger) Fatal(v ...interface{})                 { l.entry.Fatal(v...) }
func (l *LogrusLogger) Fatalf(format string, v ...interface{}) { l.entry.Fatalf(format, v...) }

// ToggleDebug flips the underlying logrus level, mirroring the
// teacher's DefaultLogger.ToggleDebug knob.
func (l *LogrusLogger) ToggleDebug(on bool) {
	if on {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
}
