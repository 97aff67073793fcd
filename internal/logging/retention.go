package logging

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/models"
	"gorm.io/gorm"
)

// Retention is how long system_logs rows are kept.
const Retention = 30 * 24 * time.Hour

// PurgeExpired deletes system_logs rows older than Retention.
func PurgeExpired(db *gorm.DB) func(ctx context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		cutoff := time.Now().Add(-Retention)
		result := db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
		return result.RowsAffected, result.Error
	}
}
