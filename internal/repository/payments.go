package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/core-coin/handlemint/internal/models"
)

// AddPayment records an inbound transfer. Replays of the same transaction are ignored.
func (db *DB) AddPayment(ctx context.Context, payment *models.Payment) error {
	db.logger.Debugw("Adding payment", "address", payment.Address, "tx", payment.TxHash, "amount", payment.Amount)
	if err := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(payment).Error; err != nil {
		return fmt.Errorf("failed to add payment: %w", err)
	}
	return nil
}

// LatestPaymentSenders maps each payment address to the sender of its latest payment.
func (db *DB) LatestPaymentSenders(ctx context.Context, addresses []string) (map[string]string, error) {
	senders := make(map[string]string, len(addresses))
	if len(addresses) == 0 {
		return senders, nil
	}
	var payments []*models.Payment
	if err := db.Conn.WithContext(ctx).
		Where("address IN ?", addresses).
		Order("block_number DESC, id DESC").
		Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	for _, payment := range payments {
		if _, seen := senders[payment.Address]; !seen {
			senders[payment.Address] = payment.Sender
		}
	}
	return senders, nil
}

// IsPaymentAddress reports whether address is a pool address currently held by a session.
func (db *DB) IsPaymentAddress(ctx context.Context, address string) (bool, error) {
	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.PaymentAddress{}).
		Where("address = ? AND in_use = ?", address, true).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check payment address: %w", err)
	}
	return count > 0, nil
}

// ReservePaymentAddress hands the next free pool address to sessionID.
func (db *DB) ReservePaymentAddress(ctx context.Context, sessionID string) (string, error) {
	var reserved string
	err := db.transaction(ctx, false, func(tx *gorm.DB) error {
		var candidates []*models.PaymentAddress
		if err := tx.Clauses(forUpdateSkipLocked()).
			Where("in_use = ?", false).
			Order("address ASC").
			Limit(10).
			Find(&candidates).Error; err != nil {
			return err
		}
		for _, candidate := range candidates {
			res := tx.Model(&models.PaymentAddress{}).
				Where("address = ? AND in_use = ?", candidate.Address, false).
				Updates(map[string]interface{}{"in_use": true, "session_id": sessionID, "reserved_at": nowMillis()})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				reserved = candidate.Address
				return nil
			}
		}
		return models.ErrNoPaymentAddress
	})
	if err != nil {
		return "", fmt.Errorf("failed to reserve payment address: %w", err)
	}
	return reserved, nil
}

func (db *DB) ReleasePaymentAddress(ctx context.Context, address string) error {
	if err := db.Conn.WithContext(ctx).Model(&models.PaymentAddress{}).
		Where("address = ?", address).
		Updates(map[string]interface{}{"in_use": false, "session_id": ""}).Error; err != nil {
		return fmt.Errorf("failed to release payment address: %w", err)
	}
	return nil
}

// AddPaymentAddresses adds addresses to the pool, skipping known ones.
func (db *DB) AddPaymentAddresses(ctx context.Context, addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}
	rows := make([]*models.PaymentAddress, 0, len(addresses))
	for _, address := range addresses {
		rows = append(rows, &models.PaymentAddress{Address: address})
	}
	if err := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rows).Error; err != nil {
		return fmt.Errorf("failed to add payment addresses: %w", err)
	}
	return nil
}
