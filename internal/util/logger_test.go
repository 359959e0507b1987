package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected zapcore.Level
	}{
		{input: "debug", expected: zapcore.DebugLevel},
		{input: "WARN", expected: zapcore.WarnLevel},
		{input: "warning", expected: zapcore.WarnLevel},
		{input: "error", expected: zapcore.ErrorLevel},
		{input: "", expected: zapcore.InfoLevel},
		{input: "verbose", expected: zapcore.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseLogLevel(tc.input))
		})
	}
}

func TestSetLogger(t *testing.T) {
	nop := zap.NewNop()
	SetLogger(nop)

	assert.Same(t, nop, Get())
	assert.NotPanics(t, func() { Info("hello", String("k", "v")) })
}
