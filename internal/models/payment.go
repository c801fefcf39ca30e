package models

// Payment is an inbound transfer to a payment address seen by the block watcher.
type Payment struct {
	// ID is the unique identifier for the payment.
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// Address is the payment address that received the transfer.
	Address string `json:"address" gorm:"column:address;size:64;index"`
	// Sender is the address the transfer came from; it becomes the return address.
	Sender string `json:"sender" gorm:"column:sender;size:64"`
	// Amount is the transferred amount in minor units.
	Amount int64 `json:"amount" gorm:"column:amount"`
	// TxHash is the transfer transaction.
	TxHash string `json:"tx_hash" gorm:"column:tx_hash;size:80;uniqueIndex"`
	// BlockNumber is the block the transfer was included in.
	BlockNumber uint64 `json:"block_number" gorm:"column:block_number"`
	// Timestamp is when the transfer was observed (unix millis).
	Timestamp int64 `json:"timestamp" gorm:"column:timestamp"`
}

// PaymentAddress is an address from the pool handed out to sessions.
type PaymentAddress struct {
	Address string `json:"address" gorm:"column:address;primaryKey;size:64"`
	// SessionID is the session currently holding the address, empty when free.
	SessionID string `json:"session_id" gorm:"column:session_id;size:36;index"`
	// InUse is set while a session holds the address.
	InUse      bool  `json:"in_use" gorm:"column:in_use;index;default:false"`
	ReservedAt int64 `json:"reserved_at" gorm:"column:reserved_at"`
}

// AddressBalance is the on-chain view of one payment address.
type AddressBalance struct {
	Address string
	// Amount is the balance in minor units.
	Amount int64
	// ReturnAddress is the sender of the latest payment, empty if unknown.
	ReturnAddress string
}
