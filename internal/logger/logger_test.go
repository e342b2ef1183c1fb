package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterLogger_FormatsCategoryAndCaller(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	l.LogOrder("CREATE", "ORD-20260101-0001", "order stored")

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "[ORDER")
	assert.Contains(t, out, "[CREATE] ORD-20260101-0001 - order stored")
	assert.Contains(t, out, "logger_test.go")
}

func TestWriterLogger_UppercasesCategory(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf)

	l.Warn("webhook", "unrecognized payload")

	assert.Contains(t, buf.String(), "[WEBHOOK")
	assert.Contains(t, buf.String(), "WARN")
}

func TestNopLogger_WritesNothing(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Error("ORDER", "ignored")
		l.LogSecurity("SIGNATURE", "ignored")
	})
}
