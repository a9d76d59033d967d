//go:build e2e

package e2e

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/fgeck/wakehub/internal/models"
	"github.com/fgeck/wakehub/internal/services/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTelegramConfig(t *testing.T) models.TelegramConfig {
	t.Helper()

	botToken := os.Getenv("TEST_TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		t.Skip("TEST_TELEGRAM_BOT_TOKEN not set")
	}

	chatID := os.Getenv("TEST_TELEGRAM_CHAT_ID")
	if chatID == "" {
		t.Skip("TEST_TELEGRAM_CHAT_ID not set")
	}

	return models.TelegramConfig{
		BotToken: botToken,
		ChatID:   chatID,
	}
}

func TestTelegramSendWakeNotice_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)

	svc := telegram.New(testLogger())

	notice := models.OperationNotice{
		OperationID: "2Bc4e7nT1tZsXgE3q6yGd0pK8mA",
		HostID:      "e2e-host",
		HostName:    "E2E <Test> Host",
		Kind:        models.OperationWake,
		FinalStatus: models.StatusOnline,
		StartTime:   time.Now().Add(-30 * time.Second),
		Duration:    30 * time.Second,
	}

	result, err := svc.SendNotification(context.Background(), cfg, notice)

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)
}

func TestTelegramSendFailedShutdownNotice_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)

	svc := telegram.New(testLogger())

	notice := models.OperationNotice{
		OperationID: "2Bc4e7nT1tZsXgE3q6yGd0pK8mB",
		HostID:      "e2e-host",
		HostName:    "e2e-host",
		Kind:        models.OperationShutdown,
		FinalStatus: models.StatusOnline,
		StartTime:   time.Now().Add(-10 * time.Second),
		Duration:    10 * time.Second,
		Error:       errors.New("ssh: handshake failed").Error(),
	}

	result, err := svc.SendNotification(context.Background(), cfg, notice)

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
}

func TestTelegramInvalidToken_E2E(t *testing.T) {
	if os.Getenv("TEST_TELEGRAM_CHAT_ID") == "" {
		t.Skip("TEST_TELEGRAM_CHAT_ID not set")
	}

	cfg := models.TelegramConfig{
		BotToken: "invalid-token",
		ChatID:   os.Getenv("TEST_TELEGRAM_CHAT_ID"),
	}

	svc := telegram.New(testLogger())

	result, err := svc.SendNotification(context.Background(), cfg, models.OperationNotice{HostID: "x"})

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	require.NotNil(t, result.Error)
	assert.NotContains(t, result.Error.Error(), "invalid-token")
}
