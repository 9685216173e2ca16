package domain

import (
	"time"
)

// AppConfig is one durable key/value row (the balance lives under DefaultBalanceKey).
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BalanceRecord is the denormalised copy kept in the remote store, keyed by user identity.
type BalanceRecord struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	Origin    string    `json:"origin"`
	UpdatedAt time.Time `json:"updated_at"`
}
