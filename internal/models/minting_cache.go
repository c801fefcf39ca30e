package models

// MintingCacheEntry marks a handle as having a mint in flight or recently completed.
type MintingCacheEntry struct {
	// Key is the handle wrapped in angle brackets, see MintingCacheKey.
	Key string `json:"key" gorm:"column:cache_key;primaryKey;size:80"`
	// Handle is the bare handle name.
	Handle string `json:"handle" gorm:"column:handle;size:64"`
	// CreatedAt is when the entry was reserved (unix millis).
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
}

func (MintingCacheEntry) TableName() string {
	return "minting_cache"
}

// MintingCacheKey wraps a handle so it can't collide with query wildcards or other keys.
func MintingCacheKey(handle string) string {
	return "<" + handle + ">"
}
