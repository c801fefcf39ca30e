package notificator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/logger"
)

type sent struct {
	to      string
	message string
}

type fakeTelegram struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeTelegram) SendNotification(_ context.Context, chatID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{chatID, message})
	return f.err
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeEmail) SendNotification(to, _, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{to, message})
	return nil
}

type fakeRecipients struct {
	recipients []*models.AlertRecipient
	err        error
}

func (f *fakeRecipients) ListAlertRecipients(context.Context) ([]*models.AlertRecipient, error) {
	return f.recipients, f.err
}

func TestSendAlertFansOut(t *testing.T) {
	tg, mail := &fakeTelegram{}, &fakeEmail{}
	store := &fakeRecipients{recipients: []*models.AlertRecipient{
		{TelegramUsername: "ops", TelegramChatID: "42", Email: "ops@example.com"},
		{TelegramUsername: "dup", TelegramChatID: "100"},
		{TelegramUsername: "pending"},
	}}
	n := NewNotificator(logger.NewNop(), store, tg, mail, "100", "alerts@example.com")

	n.SendAlert(context.Background(), &models.Alert{Message: "wallet low", Fields: map[string]interface{}{"wallet": "w1"}})

	require.Len(t, tg.sent, 2)
	assert.Equal(t, "100", tg.sent[0].to)
	assert.Equal(t, "42", tg.sent[1].to)
	assert.Equal(t, "wallet low\nwallet: w1", tg.sent[0].message)
	require.Len(t, mail.sent, 2)
	assert.Equal(t, "alerts@example.com", mail.sent[0].to)
	assert.Equal(t, "ops@example.com", mail.sent[1].to)
}

func TestSendAlertSurvivesFailures(t *testing.T) {
	tg := &fakeTelegram{err: errors.New("telegram down")}
	store := &fakeRecipients{err: errors.New("db down")}
	n := NewNotificator(logger.NewNop(), store, tg, nil, "100", "")

	n.SendAlert(context.Background(), &models.Alert{Message: "stuck"})
	assert.Len(t, tg.sent, 1)
}

func TestAlertFromLogger(t *testing.T) {
	tg := &fakeTelegram{}
	n := NewNotificator(logger.NewNop(), nil, tg, nil, "7", "")
	log := logger.NewNop()
	log.SetAlertSink(n)

	log.Notify("all wallets locked", "wallets", 3)
	n.Wait()

	require.Len(t, tg.sent, 1)
	assert.Equal(t, "all wallets locked\nwallets: 3", tg.sent[0].message)
}

func TestFields(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"a": 1, "extra": "dangling"}, fields([]interface{}{"a", 1, "dangling"}))
	assert.Empty(t, fields(nil))
}
