package alert

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockSlack struct {
	mock.Mock
}

func (m *mockSlack) PostMessage(ctx context.Context, channelID, message string) error {
	args := m.Called(ctx, channelID, message)
	return args.Error(0)
}

func TestNotifyLogsAndPosts(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := &mockSlack{}
	s.On("PostMessage", mock.Anything, "", "[CRITICAL] payout: compensation failed\n• payout_id: 7\n• user_id: 3").Return(nil)

	n := NewLogNotifier(zap.New(core), s)
	n.Notify(context.Background(), Alert{
		Severity:  SeverityCritical,
		Component: "payout",
		Message:   "compensation failed",
		Fields:    map[string]string{"user_id": "3", "payout_id": "7"},
	})

	s.AssertExpectations(t)
	entries := logs.FilterMessage("compensation failed").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, zap.ErrorLevel, entries[0].Level)
		assert.Equal(t, "payout", entries[0].ContextMap()["component"])
	}
}

func TestNotifyDeliveryFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := &mockSlack{}
	s.On("PostMessage", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down"))

	NewLogNotifier(zap.New(core), s).Notify(context.Background(), Alert{Severity: SeverityWarning, Component: "webhook", Message: "m"})

	assert.Equal(t, 1, logs.FilterMessage("alert delivery failed").Len())
}
