package logger

import (
	"fmt"
)

type Logger interface {
	Log(format string, args ...interface{})
}

// stdLogger prefixes every line with the owning agent's username.
type stdLogger struct {
	userName string
}

func NewLogger(username string) Logger {
	return &stdLogger{
		userName: username,
	}
}

func (l *stdLogger) Log(format string, args ...interface{}) {
	fmt.Printf("[%s] %s\n", l.userName, fmt.Sprintf(format, args...))
}
