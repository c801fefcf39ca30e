package models

import (
	"fmt"
	"sort"
	"strings"
)

// AlertRecipient is an operator who receives notify-level alerts.
type AlertRecipient struct {
	// ID is the unique identifier for the recipient.
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// TelegramUsername is the operator's telegram username.
	TelegramUsername string `json:"telegram_username" gorm:"column:telegram_username;size:64;index"`
	// TelegramChatID is filled in when the operator starts a chat with the bot.
	TelegramChatID string `json:"telegram_chat_id" gorm:"column:telegram_chat_id;size:64"`
	// Email is the operator's email address.
	Email string `json:"email" gorm:"column:email;size:255"`
}

// Alert is an operator notification.
type Alert struct {
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields"`
}

func (a *Alert) String() string {
	if len(a.Fields) == 0 {
		return a.Message
	}
	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(a.Message)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, a.Fields[k])
	}
	return b.String()
}
