package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankState tracks every account balance, keyed by account then currency name.
type BankState struct {
	Accounts  map[string]map[string]decimal.Decimal `json:"accounts"`
	Deposits  int64                                 `json:"deposits"`
	Applied   map[string]time.Time                  `json:"applied,omitempty"` // deposit refs already credited
	UpdatedAt time.Time                             `json:"updated_at"`
}
