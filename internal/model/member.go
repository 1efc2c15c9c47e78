package model

import (
	"time"

	"VoiceEconomy/internal/histogram"

	"github.com/shopspring/decimal"
)

// VoiceState is a presence snapshot pushed by the chat platform when a
// member's voice state changes.
type VoiceState struct {
	InChannel    bool
	ChannelID    string
	CameraOn     bool
	Streaming    bool
	SelfMuted    bool
	SelfDeafened bool
}

// MemberActivityState is the per-day tracking state of one member.
type MemberActivityState struct {
	MemberID string `json:"member_id"`

	IsBirthday bool `json:"is_birthday"`
	VideoOn    bool `json:"video_on"`
	Streaming  bool `json:"streaming"`
	Muted      bool `json:"muted"`
	Deafened   bool `json:"deafened"`

	ChannelID string `json:"channel_id,omitempty"` // empty when not in voice

	TicksUntilReward     int `json:"ticks_until_reward"`
	RewardSlotsRemaining int `json:"reward_slots_remaining"`
	BudgetCapacity       int `json:"budget_capacity"`

	TicksInCallToday    int64 `json:"ticks_in_call_today"`
	TicksVideoOnToday   int64 `json:"ticks_video_on_today"`
	TicksStreamingToday int64 `json:"ticks_streaming_today"`
	TicksMutedToday     int64 `json:"ticks_muted_today"`
	TicksDeafenedToday  int64 `json:"ticks_deafened_today"`

	PointsEarnedToday decimal.Decimal     `json:"points_earned_today"`
	Histogram         histogram.Histogram `json:"histogram"`

	UpdatedAt time.Time `json:"updated_at"`
}

// InVoice reports whether the member currently occupies a voice channel.
func (m *MemberActivityState) InVoice() bool { return m.ChannelID != "" }

// Clone returns a deep copy.
func (m *MemberActivityState) Clone() *MemberActivityState {
	c := *m
	c.Histogram = m.Histogram.Clone()
	return &c
}

// MemberLongTermState aggregates a member's activity across all settled days.
type MemberLongTermState struct {
	MemberID string `json:"member_id"`

	SecondsInCall    int64 `json:"seconds_in_call"`
	SecondsVideoOn   int64 `json:"seconds_video_on"`
	SecondsStreaming int64 `json:"seconds_streaming"`
	SecondsMuted     int64 `json:"seconds_muted"`
	SecondsDeafened  int64 `json:"seconds_deafened"`

	PointsEarned decimal.Decimal     `json:"points_earned"`
	Histogram    histogram.Histogram `json:"histogram"`

	HighestMultiplier    decimal.Decimal `json:"highest_multiplier"`
	HighestPointsEarned  decimal.Decimal `json:"highest_points_earned"`
	HighestSecondsInCall int64           `json:"highest_seconds_in_call"`

	DaysSettled    int       `json:"days_settled"`
	LastRolloverAt time.Time `json:"last_rollover_at"`
}

// Clone returns a deep copy.
func (l *MemberLongTermState) Clone() *MemberLongTermState {
	c := *l
	c.Histogram = l.Histogram.Clone()
	return &c
}
