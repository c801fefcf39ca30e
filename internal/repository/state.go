package repository

import (
	"context"
	"fmt"

	"github.com/core-coin/handlemint/internal/models"
)

func (db *DB) GetState(ctx context.Context) (*models.State, error) {
	var state models.State
	if err := db.Conn.WithContext(ctx).Where("id = ?", models.SingletonID).First(&state).Error; err != nil {
		return nil, fmt.Errorf("failed to get state: %w", notFound(err))
	}
	return &state, nil
}

// UpdateState writes the given state columns.
func (db *DB) UpdateState(ctx context.Context, fields map[string]interface{}) error {
	if err := db.Conn.WithContext(ctx).Model(&models.State{}).
		Where("id = ?", models.SingletonID).
		Updates(fields).Error; err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	return nil
}

func (db *DB) GetSettings(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	if err := db.Conn.WithContext(ctx).Where("id = ?", models.SingletonID).First(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", notFound(err))
	}
	return &settings, nil
}

func (db *DB) SaveSettings(ctx context.Context, settings *models.Settings) error {
	settings.ID = models.SingletonID
	if err := db.Conn.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
