package model

type KVEntry struct {
	Key       string `gorm:"column:key;type:text;primaryKey"`
	Value     string `gorm:"column:value;type:text;not null"`
	ExpiresAt int64  `gorm:"column:expires_at;not null;default:0"`
	UpdatedAt string `gorm:"column:updated_at;type:text;not null"`
}

func (KVEntry) TableName() string {
	return "kv_cache"
}
