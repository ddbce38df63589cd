package domain

import "time" // Timestamps

// TxKind classifies a ledger entry
type TxKind string

const (
	TxPurchase  TxKind = "purchase"  // Coins paid for a server
	TxDeduction TxKind = "deduction" // Coins metered off an occupied user
	TxRefund    TxKind = "refund"    // Reserved, nothing writes it yet
)

// RecentTransactionsLimit caps the ledger read path
const RecentTransactionsLimit = 50

// Transaction Model
type Transaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`                                                   // Primary key
	UserID    uint      `gorm:"not null;index" json:"user_id"`                                          // Owning user
	Amount    int       `gorm:"not null" json:"amount"`                                                 // Coins moved
	ServerID  *uint     `json:"server_id"`                                                              // Server involved, if any
	Kind      TxKind    `gorm:"column:transaction_type;size:50;not null;index" json:"transaction_type"` // Entry kind
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`                                 // Time of the entry
}
