package recorder

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ResolutionEvent records the tier chosen for one day.
type ResolutionEvent struct {
	ControllerID string
	Date         time.Time
	BaseTier     string
	ActiveTier   string // empty when no holiday override
	Holidays     []string
	IsWeekend    bool
	IsHoliday    bool
	Currency     string
}

// SettlementEvent records one member's daily settlement.
type SettlementEvent struct {
	RunID             string
	MemberID          string
	Points            decimal.Decimal
	Currency          string
	Deposited         bool
	SlotsUsed         int
	BestMultiplier    decimal.Decimal
	SecondsInCall     int64
	NewPointsRecord   bool
	NewCallTimeRecord bool
	Err               string // non-empty when the member was not settled
}

// RunEvent summarises one rollover across all members.
type RunEvent struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	ClosingTier  string
	OpeningTier  string
	Members      int
	Settled      int
	Failed       int
	TotalPoints  decimal.Decimal
	CurrencyName string
}

// Recorder persists rollover history for analysis.
type Recorder interface {
	RecordResolution(evt *ResolutionEvent) error
	RecordSettlement(evt *SettlementEvent) error
	RecordRun(evt *RunEvent) error
	Close() error
}

// NewRunID returns a fresh identifier tying settlements to their run.
func NewRunID() string {
	return uuid.NewString()
}
