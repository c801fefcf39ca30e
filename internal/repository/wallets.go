package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/core-coin/handlemint/internal/models"
)

// FindAndLockAvailableWallet locks the first unlocked wallet in index order and returns
// it, or nil when every wallet is locked. The lock is a conditional update, so of N
// concurrent callers only one can win a given wallet.
func (db *DB) FindAndLockAvailableWallet(ctx context.Context) (*models.MintingWallet, error) {
	var locked *models.MintingWallet
	err := db.transaction(ctx, false, func(tx *gorm.DB) error {
		var candidates []*models.MintingWallet
		if err := tx.Clauses(forUpdateSkipLocked()).
			Where("locked = ?", false).
			Order("wallet_index ASC").
			Find(&candidates).Error; err != nil {
			return err
		}
		now := nowMillis()
		for _, wallet := range candidates {
			res := tx.Model(&models.MintingWallet{}).
				Where("id = ? AND locked = ?", wallet.ID, false).
				Updates(map[string]interface{}{"locked": true, "locked_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				wallet.Locked = true
				wallet.LockedAt = now
				locked = wallet
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lock minting wallet: %w", err)
	}
	return locked, nil
}

// UnlockWallet releases wallet. A nil wallet is a no-op.
func (db *DB) UnlockWallet(ctx context.Context, wallet *models.MintingWallet) error {
	if wallet == nil {
		return nil
	}
	if err := db.Conn.WithContext(ctx).Model(&models.MintingWallet{}).
		Where("id = ?", wallet.ID).
		Update("locked", false).Error; err != nil {
		return fmt.Errorf("failed to unlock wallet %s: %w", wallet.ID, err)
	}
	wallet.Locked = false
	return nil
}

// UnlockWalletByTxID clears txID from whichever wallet carries it and unlocks that wallet.
func (db *DB) UnlockWalletByTxID(ctx context.Context, txID string) error {
	if txID == "" {
		return nil
	}
	if err := db.Conn.WithContext(ctx).Model(&models.MintingWallet{}).
		Where("tx_id = ?", txID).
		Updates(map[string]interface{}{"locked": false, "tx_id": ""}).Error; err != nil {
		return fmt.Errorf("failed to unlock wallet by tx %s: %w", txID, err)
	}
	return nil
}

func (db *DB) SetWalletTxID(ctx context.Context, walletID, txID string) error {
	if err := db.Conn.WithContext(ctx).Model(&models.MintingWallet{}).
		Where("id = ?", walletID).
		Update("tx_id", txID).Error; err != nil {
		return fmt.Errorf("failed to set wallet tx: %w", err)
	}
	return nil
}

func (db *DB) UpdateWalletBalance(ctx context.Context, walletID string, balance int64, lowBalance bool) error {
	if err := db.Conn.WithContext(ctx).Model(&models.MintingWallet{}).
		Where("id = ?", walletID).
		Updates(map[string]interface{}{"balance": balance, "low_balance": lowBalance}).Error; err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}
	return nil
}

// DetectAllLockedWithNoTransaction reports whether every wallet is locked and none of
// them carries a transaction, which means the pool is stuck.
func (db *DB) DetectAllLockedWithNoTransaction(ctx context.Context) (bool, error) {
	var total, stuck int64
	conn := db.Conn.WithContext(ctx).Model(&models.MintingWallet{})
	if err := conn.Count(&total).Error; err != nil {
		return false, fmt.Errorf("failed to count wallets: %w", err)
	}
	if total == 0 {
		return false, nil
	}
	if err := db.Conn.WithContext(ctx).Model(&models.MintingWallet{}).
		Where("locked = ? AND tx_id = ?", true, "").
		Count(&stuck).Error; err != nil {
		return false, fmt.Errorf("failed to count stuck wallets: %w", err)
	}
	return stuck == total, nil
}

func (db *DB) ListWallets(ctx context.Context) ([]*models.MintingWallet, error) {
	var wallets []*models.MintingWallet
	if err := db.Conn.WithContext(ctx).Order("wallet_index ASC").Find(&wallets).Error; err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return wallets, nil
}

// UpsertWallet registers a wallet or updates its static fields. Lock state is untouched.
func (db *DB) UpsertWallet(ctx context.Context, wallet *models.MintingWallet) error {
	if err := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"wallet_index", "address", "min_balance"}),
	}).Create(wallet).Error; err != nil {
		return fmt.Errorf("failed to upsert wallet: %w", err)
	}
	return nil
}
