package models

// StakePool is a registered stake pool operator allowed to buy its ticker as a handle.
type StakePool struct {
	PoolID string `json:"pool_id" gorm:"column:pool_id;primaryKey;size:64"`
	// Ticker is the pool ticker, lowercased; it is the handle the operator may buy.
	Ticker string `json:"ticker" gorm:"column:ticker;size:16;uniqueIndex"`
	// OwnerAddress is the registered owner key address.
	OwnerAddress string `json:"owner_address" gorm:"column:owner_address;size:64"`
}

// ReservedHandle is a handle that can't be bought through the normal flow.
type ReservedHandle struct {
	Handle string `json:"handle" gorm:"column:handle;primaryKey;size:64"`
	// Reason is why the handle is reserved (brand, blocked, ...).
	Reason string `json:"reason" gorm:"column:reason;size:64"`
}
