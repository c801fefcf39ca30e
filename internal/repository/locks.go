package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/core-coin/handlemint/internal/models"
)

// AcquireLock takes the named job lock for lease milliseconds. An expired lock held by
// another instance is taken over. It returns false when the lock is held.
func (db *DB) AcquireLock(ctx context.Context, name, instanceID string, lease int64) (bool, error) {
	acquired := false
	err := db.transaction(ctx, false, func(tx *gorm.DB) error {
		now := nowMillis()
		lock := &models.AppLock{LockName: name, InstanceID: instanceID, AcquiredAt: now, ExpiresAt: now + lease}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(lock)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			acquired = true
			return nil
		}
		res = tx.Model(&models.AppLock{}).
			Where("lock_name = ? AND expires_at < ?", name, now).
			Updates(map[string]interface{}{"instance_id": instanceID, "acquired_at": now, "expires_at": now + lease})
		if res.Error != nil {
			return res.Error
		}
		acquired = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	return acquired, nil
}

// ReleaseLock drops the named lock if instanceID still holds it.
func (db *DB) ReleaseLock(ctx context.Context, name, instanceID string) error {
	if err := db.Conn.WithContext(ctx).
		Where("lock_name = ? AND instance_id = ?", name, instanceID).
		Delete(&models.AppLock{}).Error; err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}
