package repository

import (
	"context"
	"fmt"

	"github.com/core-coin/handlemint/internal/models"
)

func (db *DB) GetStakePoolByTicker(ctx context.Context, ticker string) (*models.StakePool, error) {
	var pool models.StakePool
	if err := db.Conn.WithContext(ctx).Where("ticker = ?", ticker).First(&pool).Error; err != nil {
		return nil, fmt.Errorf("failed to get stake pool: %w", notFound(err))
	}
	return &pool, nil
}

func (db *DB) ListReservedHandles(ctx context.Context) ([]*models.ReservedHandle, error) {
	var handles []*models.ReservedHandle
	if err := db.Conn.WithContext(ctx).Find(&handles).Error; err != nil {
		return nil, fmt.Errorf("failed to list reserved handles: %w", err)
	}
	return handles, nil
}

func (db *DB) ListAlertRecipients(ctx context.Context) ([]*models.AlertRecipient, error) {
	var recipients []*models.AlertRecipient
	if err := db.Conn.WithContext(ctx).Find(&recipients).Error; err != nil {
		return nil, fmt.Errorf("failed to list alert recipients: %w", err)
	}
	return recipients, nil
}

// SetAlertRecipientChatID stores the telegram chat of a known operator username.
// It returns false when the username is not a registered recipient.
func (db *DB) SetAlertRecipientChatID(ctx context.Context, username, chatID string) (bool, error) {
	res := db.Conn.WithContext(ctx).Model(&models.AlertRecipient{}).
		Where("telegram_username = ?", username).
		Update("telegram_chat_id", chatID)
	if res.Error != nil {
		return false, fmt.Errorf("failed to add telegram chat ID: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
