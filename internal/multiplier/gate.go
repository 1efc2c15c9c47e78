package multiplier

import (
	"VoiceEconomy/internal/model"

	"github.com/shopspring/decimal"
)

// GlobalBonus returns the bonus every member shares today.
//
// It is paid only on weekends. A holiday override changes which tier's
// weekend bonus applies, but a holiday on a weekday grants nothing here.
func GlobalBonus(ctrl model.ActivityController, base model.MultiplierTier, override *model.MultiplierTier) decimal.Decimal {
	if !ctrl.IsWeekend {
		return decimal.Zero
	}
	if override != nil {
		return override.Weekend
	}
	return base.Weekend
}
