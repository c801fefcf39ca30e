package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/core-coin/handlemint/internal/models"
)

// TryReserveMintingCache reserves handle for minting. It returns false if the handle
// already has an entry.
func (db *DB) TryReserveMintingCache(ctx context.Context, handle string) (bool, error) {
	reserved, err := tryReserve(db.Conn.WithContext(ctx), handle)
	if err != nil {
		return false, fmt.Errorf("failed to reserve minting cache: %w", err)
	}
	return reserved, nil
}

// tryReserve inserts the cache entry with conn, which may be a transaction.
func tryReserve(conn *gorm.DB, handle string) (bool, error) {
	entry := &models.MintingCacheEntry{Key: models.MintingCacheKey(handle), Handle: handle}
	res := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseMintingCache removes the entries of the given handles.
func (db *DB) ReleaseMintingCache(ctx context.Context, handles []string) error {
	if len(handles) == 0 {
		return nil
	}
	keys := make([]string, 0, len(handles))
	for _, handle := range handles {
		keys = append(keys, models.MintingCacheKey(handle))
	}
	if err := db.Conn.WithContext(ctx).Where("cache_key IN ?", keys).Delete(&models.MintingCacheEntry{}).Error; err != nil {
		return fmt.Errorf("failed to release minting cache: %w", err)
	}
	return nil
}

// ClaimHandleForMint is the store side of the duplicate guard. In one transaction it
// counts the other PAID sessions for handle and, if there are none, reserves the
// minting cache entry.
func (db *DB) ClaimHandleForMint(ctx context.Context, sessionID, handle string) (*models.HandleClaim, error) {
	claim := &models.HandleClaim{}
	err := db.transaction(ctx, false, func(tx *gorm.DB) error {
		if err := tx.Model(&models.ActiveSession{}).
			Where("handle = ? AND status = ? AND id <> ?", handle, models.StatusPaid, sessionID).
			Count(&claim.OtherPaidSessions).Error; err != nil {
			return err
		}
		if claim.OtherPaidSessions > 0 {
			return nil
		}
		reserved, err := tryReserve(tx, handle)
		if err != nil {
			return err
		}
		claim.Reserved = reserved
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim handle for mint: %w", err)
	}
	return claim, nil
}
