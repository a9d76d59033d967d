package shutdown

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fgeck/wakehub/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStrategy struct {
	name         string
	shutdownFunc func(ctx context.Context, host models.Host) *models.ShutdownResult
}

func (m *mockStrategy) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockStrategy) Shutdown(ctx context.Context, host models.Host) *models.ShutdownResult {
	if m.shutdownFunc != nil {
		return m.shutdownFunc(ctx, host)
	}
	return &models.ShutdownResult{Strategy: m.Name(), CommandRun: true, Success: true}
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testHost() models.Host {
	return models.Host{
		ID:      "pc1",
		Name:    "PC 1",
		MAC:     "AABBCCDDEEFF",
		Address: "192.168.1.100",
		Credentials: models.Credentials{
			Username: "user1",
		},
	}
}

func TestResolveStrategy(t *testing.T) {
	tests := []struct {
		configured string
		goos       string
		want       string
	}{
		{"", "windows", models.StrategyWindows},
		{models.StrategyAuto, "windows", models.StrategyWindows},
		{models.StrategyAuto, "linux", models.StrategySSH},
		{"", "darwin", models.StrategySSH},
		{models.StrategySSH, "windows", models.StrategySSH},
		{models.StrategyWindows, "linux", models.StrategyWindows},
	}

	for _, tt := range tests {
		t.Run(tt.configured+"/"+tt.goos, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveStrategy(tt.configured, tt.goos))
		})
	}
}

func TestNew_ExplicitStrategy(t *testing.T) {
	d := New(testLogger(), models.ShutdownConfig{Strategy: models.StrategyWindows}, time.Second)
	assert.Equal(t, models.StrategyWindows, d.Strategy())

	d = New(testLogger(), models.ShutdownConfig{Strategy: models.StrategySSH}, time.Second)
	assert.Equal(t, models.StrategySSH, d.Strategy())
}

func TestDispatcher_Success(t *testing.T) {
	var captured models.Host
	strategy := &mockStrategy{
		shutdownFunc: func(ctx context.Context, host models.Host) *models.ShutdownResult {
			captured = host
			return &models.ShutdownResult{CommandRun: true, Success: true}
		},
	}

	d := NewWithStrategy(testLogger(), strategy, time.Second)
	result, err := d.Shutdown(context.Background(), testHost())

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.Error)
	assert.Equal(t, "192.168.1.100", captured.Address)
}

func TestDispatcher_EnforcesTimeout(t *testing.T) {
	strategy := &mockStrategy{
		shutdownFunc: func(ctx context.Context, host models.Host) *models.ShutdownResult {
			<-ctx.Done()
			return &models.ShutdownResult{CommandRun: true, Error: ctx.Err()}
		},
	}

	d := NewWithStrategy(testLogger(), strategy, 20*time.Millisecond)

	start := time.Now()
	result, err := d.Shutdown(context.Background(), testHost())

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	strategy := &mockStrategy{
		shutdownFunc: func(ctx context.Context, host models.Host) *models.ShutdownResult {
			panic("boom")
		},
	}

	d := NewWithStrategy(testLogger(), strategy, time.Second)

	var result *models.ShutdownResult
	var err error
	assert.NotPanics(t, func() {
		result, err = d.Shutdown(context.Background(), testHost())
	})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error.Error(), "panicked")
}

func TestDispatcher_UnsuccessfulWithoutError(t *testing.T) {
	strategy := &mockStrategy{
		shutdownFunc: func(ctx context.Context, host models.Host) *models.ShutdownResult {
			return &models.ShutdownResult{CommandRun: true}
		},
	}

	d := NewWithStrategy(testLogger(), strategy, time.Second)
	result, err := d.Shutdown(context.Background(), testHost())

	require.NoError(t, err)
	require.Error(t, result.Error)
}

func TestDispatcher_StrategyError(t *testing.T) {
	strategy := &mockStrategy{
		shutdownFunc: func(ctx context.Context, host models.Host) *models.ShutdownResult {
			return &models.ShutdownResult{Error: errors.New("access denied")}
		},
	}

	d := NewWithStrategy(testLogger(), strategy, time.Second)
	result, err := d.Shutdown(context.Background(), testHost())

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error.Error(), "access denied")
}
