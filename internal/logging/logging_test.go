package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"dev":        zapcore.DebugLevel,
		"DEBUG":      zapcore.DebugLevel,
		"info":       zapcore.InfoLevel,
		"warning":    zapcore.WarnLevel,
		"production": zapcore.ErrorLevel,
		"":           zapcore.ErrorLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestPionFactoryScopesLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := PionFactory{Logger: zap.New(core)}

	l := f.NewLogger("ice")
	l.Tracef("candidate %d", 1)
	l.Warn("slow")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "candidate 1", entries[0].Message)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
		assert.Equal(t, "pion", entries[1].LoggerName)
		assert.Equal(t, "ice", entries[1].ContextMap()["scope"])
	}
}

func TestPionFactoryWithoutLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		PionFactory{}.NewLogger("dtls").Error("ignored")
	})
}
