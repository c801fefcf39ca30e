package models

// MintingWallet is one of the fixed pool of signing wallets.
type MintingWallet struct {
	// ID is the wallet identifier known to the minting service.
	ID string `json:"id" gorm:"column:id;primaryKey;size:64"`
	// Index is the derivation index of the wallet.
	Index int `json:"index" gorm:"column:wallet_index;uniqueIndex"`
	// Address is the on-chain address the wallet pays fees from.
	Address string `json:"address" gorm:"column:address;size:64"`
	// Locked is set while a minting batch owns the wallet.
	Locked bool `json:"locked" gorm:"column:locked;index;default:false"`
	// Balance is the last observed balance in minor units.
	Balance int64 `json:"balance" gorm:"column:balance"`
	// MinBalance is the balance below which the wallet is not used.
	MinBalance int64 `json:"min_balance" gorm:"column:min_balance"`
	// TxID is the in-flight transaction this wallet is tied to, empty when none.
	TxID string `json:"tx_id" gorm:"column:tx_id;size:80;index"`
	// LowBalance flags the wallet for an operator refill.
	LowBalance bool `json:"low_balance" gorm:"column:low_balance;default:false"`
	// LockedAt is when the wallet was last locked (unix millis).
	LockedAt int64 `json:"locked_at" gorm:"column:locked_at"`
	// UpdatedAt is maintained by the store (unix millis).
	UpdatedAt int64 `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

func (MintingWallet) TableName() string {
	return "minting_wallets"
}
