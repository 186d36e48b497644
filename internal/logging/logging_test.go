package logging

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func resetLogger() {
	logger = nil
	once = sync.Once{}
}

func TestLFallsBackWhenUninitialized(t *testing.T) {
	resetLogger()
	l := L()
	assert.NotNil(t, l)
}

func TestInitializeIsIdempotent(t *testing.T) {
	resetLogger()
	require := assert.New(t)
	require.NoError(Initialize(true))

	first := logger
	require.NoError(Initialize(false))
	require.Equal(first, logger)
}

func TestInfoWritesContextFields(t *testing.T) {
	resetLogger()
	core, logs := observer.New(zap.InfoLevel)
	logger = zap.New(core)

	ctx := context.WithValue(context.Background(), CorrelationIDKey, "req-1")
	ctx = context.WithValue(ctx, UserIDKey, "u1")
	ctx = context.WithValue(ctx, RoomCodeKey, "ROOM01")

	Info(ctx, "joined room")

	require := assert.New(t)
	require.Equal(1, logs.Len())
	entry := logs.All()[0]
	require.Equal("joined room", entry.Message)

	fields := entry.ContextMap()
	require.Equal("req-1", fields["correlation_id"])
	require.Equal("u1", fields["user_id"])
	require.Equal("ROOM01", fields["room_code"])
	require.Equal("alias-server", fields["service"])
}

func TestInfoOmitsUnsetContextFields(t *testing.T) {
	resetLogger()
	core, logs := observer.New(zap.InfoLevel)
	logger = zap.New(core)

	Info(context.Background(), "no context fields")

	fields := logs.All()[0].ContextMap()
	_, hasCorrelation := fields["correlation_id"]
	assert.False(t, hasCorrelation)
	assert.Equal(t, "alias-server", fields["service"])
}

func TestHelperMethodsLogAtExpectedLevels(t *testing.T) {
	resetLogger()
	core, logs := observer.New(zap.DebugLevel)
	logger = zap.New(core)

	ctx := context.Background()
	Info(ctx, "info msg")
	Warn(ctx, "warn msg")
	Error(ctx, "error msg")

	require := assert.New(t)
	require.Equal(3, logs.Len())
	require.Equal(zapcore.InfoLevel, logs.All()[0].Level)
	require.Equal(zapcore.WarnLevel, logs.All()[1].Level)
	require.Equal(zapcore.ErrorLevel, logs.All()[2].Level)
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "***", RedactEmail(""))
	assert.Equal(t, "***", RedactEmail("plainstring"))
	assert.Equal(t, "***@example.com", RedactEmail("user@example.com"))
	assert.Equal(t, "***@sub.domain.com", RedactEmail("firstname.lastname@sub.domain.com"))
}

func TestRedactToken(t *testing.T) {
	assert.Equal(t, "***", RedactToken("short"))
	assert.Equal(t, "abcdefgh***", RedactToken("abcdefghijklmnop"))
}
