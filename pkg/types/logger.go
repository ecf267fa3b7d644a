package types

// Logger is the logging contract every layer depends on, shaped after
// the teacher's own definition.Logger interface so a caller can swap
// in any backend without touching protocol code.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})

	// WithFields returns a Logger that attaches the given key/value
	// pairs to every subsequent line, the way a structured logger
	// scopes a request id. The protocol layers do not call it; they
	// format msg_id and phase into each message.
	WithFields(fields Fields) Logger
}

// Fields is a structured key/value attachment for a single log line or
// a whole scoped Logger.
type Fields map[string]interface{}
