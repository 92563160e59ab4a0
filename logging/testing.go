package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// tbAppender writes console formatted lines through testing.TB.Log so output stays attached to the
// test that produced it.
type tbAppender struct {
	tb testing.TB
}

// NewTestAppender returns an Appender that logs through tb.
func NewTestAppender(tb testing.TB) Appender {
	return tbAppender{tb: tb}
}

func (a tbAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	a.tb.Helper()
	line, err := formatEntry(entry, fields)
	a.tb.Log(line)
	return err
}

func (a tbAppender) Sync() error {
	return nil
}
