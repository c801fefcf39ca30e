package notificator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/logger"
)

const (
	alertSubject = "handlemint operator alert"
	sendTimeout  = 30 * time.Second
)

// TelegramSender delivers a message to a telegram chat.
type TelegramSender interface {
	SendNotification(ctx context.Context, chatID, message string) error
}

// EmailSender delivers a message by email.
type EmailSender interface {
	SendNotification(to, subject, message string) error
}

// RecipientStore lists the operators that receive alerts.
type RecipientStore interface {
	ListAlertRecipients(ctx context.Context) ([]*models.AlertRecipient, error)
}

// Notificator fans operator alerts out to telegram and email. Either channel may be nil.
type Notificator struct {
	logger *logger.Logger
	db     RecipientStore

	TelegramNotificator TelegramSender
	EmailNotificator    EmailSender

	alertChatID string
	alertEmail  string

	wg sync.WaitGroup
}

func NewNotificator(logger *logger.Logger, db RecipientStore, telNotif TelegramSender, emailNotif EmailSender, alertChatID, alertEmail string) *Notificator {
	return &Notificator{
		logger:              logger,
		db:                  db,
		TelegramNotificator: telNotif,
		EmailNotificator:    emailNotif,
		alertChatID:         alertChatID,
		alertEmail:          alertEmail,
	}
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorw("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// SendAlert delivers alert to the configured alert chat and email and to every
// registered recipient. Delivery failures are logged.
func (n *Notificator) SendAlert(ctx context.Context, alert *models.Alert) {
	chats, emails := n.destinations(ctx)
	message := alert.String()

	if n.TelegramNotificator != nil {
		for _, chatID := range chats {
			chatID := chatID
			n.safeCall(func() {
				if err := n.TelegramNotificator.SendNotification(ctx, chatID, message); err != nil {
					n.logger.Errorw("Failed to send telegram alert", "chat", chatID, "error", err)
				}
			}, "telegramAlert")
		}
	}
	if n.EmailNotificator != nil {
		for _, email := range emails {
			email := email
			n.safeCall(func() {
				if err := n.EmailNotificator.SendNotification(email, alertSubject, message); err != nil {
					n.logger.Errorw("Failed to send email alert", "email", email, "error", err)
				}
			}, "emailAlert")
		}
	}
}

// Alert is called by the logger for notify-level messages. Delivery runs in the
// background so a slow channel never holds up a job.
func (n *Notificator) Alert(message string, keysAndValues ...interface{}) {
	alert := &models.Alert{Message: message, Fields: fields(keysAndValues)}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		n.safeCall(func() { n.SendAlert(ctx, alert) }, "alert")
	}()
}

// Wait blocks until every background alert has been delivered or has failed.
func (n *Notificator) Wait() {
	n.wg.Wait()
}

func (n *Notificator) destinations(ctx context.Context) (chats, emails []string) {
	seenChats := map[string]bool{}
	seenEmails := map[string]bool{}
	addChat := func(id string) {
		if id != "" && !seenChats[id] {
			seenChats[id] = true
			chats = append(chats, id)
		}
	}
	addEmail := func(email string) {
		if email != "" && !seenEmails[email] {
			seenEmails[email] = true
			emails = append(emails, email)
		}
	}

	addChat(n.alertChatID)
	addEmail(n.alertEmail)
	if n.db != nil {
		recipients, err := n.db.ListAlertRecipients(ctx)
		if err != nil {
			n.logger.Errorw("Failed to list alert recipients", "error", err)
		}
		for _, r := range recipients {
			addChat(r.TelegramChatID)
			addEmail(r.Email)
		}
	}
	return chats, emails
}

// fields turns logger key/value pairs into alert fields.
func fields(keysAndValues []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	if len(keysAndValues)%2 == 1 {
		out["extra"] = keysAndValues[len(keysAndValues)-1]
	}
	return out
}
