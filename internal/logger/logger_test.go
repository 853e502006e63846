package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSensitiveKeys(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := Wrap(zap.New(core))

	l.Info("login", "username", "ada", "password", "hunter22", "jwt_token", "abc")
	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "ada", fields["username"])
	assert.Equal(t, "[REDACTED]", fields["password"])
	assert.Equal(t, "[REDACTED]", fields["jwt_token"])
}

func TestRedactsJWTLookingValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := Wrap(zap.New(core)).With("component", "auth")

	l.Warn("bad header", "value", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1c2VyLTEifQ.sig")
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["value"])
	assert.Equal(t, "auth", fields["component"])
}
