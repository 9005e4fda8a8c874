package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ticketbot/internal/errs"
	"ticketbot/internal/infrastructure/persistence/relational/model"
	"ticketbot/internal/ports"
)

// KVCache stores cache entries in the kv_cache table of the ticket database.
// Expired rows are ignored on read and removed lazily.
type KVCache struct {
	db  *gorm.DB
	now func() time.Time
}

var _ ports.Cache = (*KVCache)(nil)

func NewKVCache(db *gorm.DB) *KVCache {
	return &KVCache{db: db, now: time.Now}
}

func (c *KVCache) Get(ctx context.Context, key string) (string, bool, error) {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return "", false, err
	}

	var row model.KVEntry
	if err := c.db.WithContext(ctx).Where("key = ?", trimmedKey).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errs.Wrap(err, "query cache by key")
	}

	if row.ExpiresAt > 0 && c.now().UnixNano() >= row.ExpiresAt {
		_ = c.db.WithContext(ctx).
			Where("key = ? AND expires_at = ?", trimmedKey, row.ExpiresAt).
			Delete(&model.KVEntry{}).Error
		return "", false, nil
	}

	return row.Value, true, nil
}

func (c *KVCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}

	now := c.now()
	row := model.KVEntry{
		Key:       trimmedKey,
		Value:     value,
		UpdatedAt: now.UTC().Format(time.RFC3339Nano),
	}
	if ttl > 0 {
		row.ExpiresAt = now.Add(ttl).UnixNano()
	}

	if err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      row.Value,
			"expires_at": row.ExpiresAt,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert cache key")
	}

	return nil
}

func (c *KVCache) Delete(ctx context.Context, key string) error {
	trimmedKey, err := checkKey(ctx, key)
	if err != nil {
		return err
	}

	if err := c.db.WithContext(ctx).Where("key = ?", trimmedKey).Delete(&model.KVEntry{}).Error; err != nil {
		return errs.Wrap(err, "delete cache key")
	}
	return nil
}

func checkKey(ctx context.Context, key string) (string, error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(err, "check context")
	}

	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return "", errors.New("key is required")
	}
	return trimmedKey, nil
}
