package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"VoiceEconomy/internal/holiday"
	"VoiceEconomy/internal/model"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Engine struct {
		TickInterval   time.Duration `yaml:"tick_interval"`
		TicksPerReward int           `yaml:"ticks_per_reward"`
		BasePointValue float64       `yaml:"base_point_value"`
		RewardsPerDay  int           `yaml:"rewards_per_day"`
		ResetHour      int           `yaml:"reset_hour"`
		DecimalPlaces  *int32        `yaml:"decimal_places"`
		Timezone       string        `yaml:"timezone"`
		Workers        int           `yaml:"workers"`
	} `yaml:"engine"`
	Currencies []CurrencyConfig `yaml:"currencies"`
	Tiers      []TierConfig     `yaml:"tiers"`
	Controller struct {
		ID              string                 `yaml:"id"`
		BaseTier        string                 `yaml:"base_tier"`
		FixedHolidays   []FixedHolidayConfig   `yaml:"fixed_holidays"`
		WeekdayHolidays []WeekdayHolidayConfig `yaml:"weekday_holidays"`
	} `yaml:"controller"`
	Storage struct {
		BadgerDir     string `yaml:"badger_dir"`
		BankStateFile string `yaml:"bank_state_file"`
		SQLitePath    string `yaml:"sqlite_path"`
	} `yaml:"storage"`
	Notifier struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notifier"`
	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
	LogLevel string `yaml:"log_level"`
}

// CurrencyConfig is one entry of the currencies list.
type CurrencyConfig struct {
	Name           string `yaml:"name"`
	Plural         string `yaml:"plural"`
	Symbol         string `yaml:"symbol"`
	SymbolAsPrefix bool   `yaml:"symbol_as_prefix"`
	Value          int64  `yaml:"value"`
	DecimalPlaces  *int32 `yaml:"decimal_places"` // defaults to engine.decimal_places
}

// TierConfig is one entry of the tiers list. Unset weights take the
// defaults below.
type TierConfig struct {
	Name          string   `yaml:"name"`
	Priority      int      `yaml:"priority"`
	Currency      string   `yaml:"currency"`
	RewardsPerDay int      `yaml:"rewards_per_day"`
	Base          *float64 `yaml:"base"`
	Weekend       *float64 `yaml:"weekend"`
	Birthday      *float64 `yaml:"birthday"`
	Video         *float64 `yaml:"video"`
	Streaming     *float64 `yaml:"streaming"`
	Muted         *float64 `yaml:"muted"`
	Deafened      *float64 `yaml:"deafened"`
	Group         *float64 `yaml:"group"`
	GroupMax      *float64 `yaml:"group_max"`
}

// FixedHolidayConfig is a holiday on the same date every year.
type FixedHolidayConfig struct {
	Name  string `yaml:"name"`
	Month int    `yaml:"month"`
	Day   int    `yaml:"day"`
	Tier  string `yaml:"tier"`
}

// WeekdayHolidayConfig is a holiday on the nth weekday of a month. Negative
// weeks count from the end of the month.
type WeekdayHolidayConfig struct {
	Name    string `yaml:"name"`
	Month   int    `yaml:"month"`
	Week    int    `yaml:"week"`
	Weekday string `yaml:"weekday"`
	Tier    string `yaml:"tier"`
}

// Default tier weights.
const (
	DefaultBase      = 1.0
	DefaultWeekend   = 0.5
	DefaultBirthday  = 2.0
	DefaultVideo     = 0.04
	DefaultStreaming = 0.06
	DefaultMuted     = -0.01
	DefaultDeafened  = -0.12
	DefaultGroup     = 0.01
	DefaultGroupMax  = 0.1
)

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("TICK_INTERVAL: %w", err)
		}
		cfg.Engine.TickInterval = d
	}
	if v := os.Getenv("TICKS_PER_REWARD"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.Engine.TicksPerReward = n
		}
	}
	if v := os.Getenv("RESET_HOUR"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.Engine.ResetHour = n
		}
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		cfg.Engine.Timezone = v
	}
	if v := os.Getenv("BADGER_DIR"); v != "" {
		cfg.Storage.BadgerDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("BANK_STATE_FILE"); v != "" {
		cfg.Storage.BankStateFile = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Notifier.WebhookURL = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.TickInterval == 0 {
		c.Engine.TickInterval = time.Second
	}
	if c.Engine.TicksPerReward == 0 {
		c.Engine.TicksPerReward = 60
	}
	if c.Engine.BasePointValue == 0 {
		c.Engine.BasePointValue = 1
	}
	if c.Engine.RewardsPerDay == 0 {
		c.Engine.RewardsPerDay = 100
	}
	if c.Engine.DecimalPlaces == nil {
		places := int32(2)
		c.Engine.DecimalPlaces = &places
	}
	if c.Engine.Timezone == "" {
		c.Engine.Timezone = "Local"
	}
	if c.Engine.Workers == 0 {
		c.Engine.Workers = 8
	}
	if len(c.Currencies) == 0 {
		c.Currencies = []CurrencyConfig{{Name: "coin", Plural: "coins", Value: 1}}
	}
	for i := range c.Currencies {
		if c.Currencies[i].Value == 0 {
			c.Currencies[i].Value = 1
		}
		if c.Currencies[i].DecimalPlaces == nil {
			places := *c.Engine.DecimalPlaces
			c.Currencies[i].DecimalPlaces = &places
		}
	}
	if c.Controller.ID == "" {
		c.Controller.ID = "default"
	}
	if c.Controller.BaseTier == "" {
		c.Controller.BaseTier = "base"
	}
	if len(c.Tiers) == 0 {
		c.Tiers = []TierConfig{{Name: c.Controller.BaseTier}}
	}
	for i := range c.Tiers {
		if c.Tiers[i].Currency == "" {
			c.Tiers[i].Currency = c.Currencies[0].Name
		}
		if c.Tiers[i].RewardsPerDay == 0 {
			c.Tiers[i].RewardsPerDay = c.Engine.RewardsPerDay
		}
	}
	if c.Storage.BankStateFile == "" {
		c.Storage.BankStateFile = "data/bank_state.json"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("engine.tick_interval must be positive")
	}
	if c.Engine.TicksPerReward <= 0 {
		return fmt.Errorf("engine.ticks_per_reward must be positive")
	}
	if c.Engine.BasePointValue <= 0 {
		return fmt.Errorf("engine.base_point_value must be positive")
	}
	if c.Engine.RewardsPerDay < 0 {
		return fmt.Errorf("engine.rewards_per_day must not be negative")
	}
	if c.Engine.ResetHour < 0 || c.Engine.ResetHour > 23 {
		return fmt.Errorf("engine.reset_hour must be between 0 and 23")
	}
	if c.Engine.DecimalPlaces != nil && *c.Engine.DecimalPlaces < 0 {
		return fmt.Errorf("engine.decimal_places must not be negative")
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	currencies := make(map[string]bool, len(c.Currencies))
	for _, cur := range c.Currencies {
		if cur.Name == "" {
			return fmt.Errorf("currency name is required")
		}
		if currencies[cur.Name] {
			return fmt.Errorf("duplicate currency %q", cur.Name)
		}
		if cur.DecimalPlaces != nil && *cur.DecimalPlaces < 0 {
			return fmt.Errorf("currency %s: decimal_places must not be negative", cur.Name)
		}
		currencies[cur.Name] = true
	}

	tiers := make(map[string]bool, len(c.Tiers))
	for _, t := range c.Tiers {
		if t.Name == "" {
			return fmt.Errorf("tier name is required")
		}
		if tiers[t.Name] {
			return fmt.Errorf("duplicate tier %q", t.Name)
		}
		if !currencies[t.Currency] {
			return fmt.Errorf("tier %s: unknown currency %q", t.Name, t.Currency)
		}
		if t.RewardsPerDay < 0 {
			return fmt.Errorf("tier %s: rewards_per_day must not be negative", t.Name)
		}
		tiers[t.Name] = true
	}
	if !tiers[c.Controller.BaseTier] {
		return fmt.Errorf("controller.base_tier %q is not a configured tier", c.Controller.BaseTier)
	}

	for _, h := range c.Controller.FixedHolidays {
		if !tiers[h.Tier] {
			return fmt.Errorf("holiday %s: unknown tier %q", h.Name, h.Tier)
		}
		if h.Month < 1 || h.Month > 12 || h.Day < 1 || h.Day > 31 {
			return fmt.Errorf("holiday %s: invalid date %d/%d", h.Name, h.Month, h.Day)
		}
	}
	for _, h := range c.Controller.WeekdayHolidays {
		if !tiers[h.Tier] {
			return fmt.Errorf("holiday %s: unknown tier %q", h.Name, h.Tier)
		}
		if h.Month < 1 || h.Month > 12 {
			return fmt.Errorf("holiday %s: invalid month %d", h.Name, h.Month)
		}
		if h.Week < -5 || h.Week > 5 {
			return fmt.Errorf("holiday %s: week must be between -5 and 5", h.Name)
		}
		if _, err := parseWeekday(h.Weekday); err != nil {
			return fmt.Errorf("holiday %s: %w", h.Name, err)
		}
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}

// BasePoints is the point value of one reward at multiplier 1.
func (c *Config) BasePoints() decimal.Decimal {
	return decimal.NewFromFloat(c.Engine.BasePointValue)
}

// ModelCurrencies converts the currencies section.
func (c *Config) ModelCurrencies() []model.Currency {
	out := make([]model.Currency, 0, len(c.Currencies))
	for _, cur := range c.Currencies {
		var places int32
		if cur.DecimalPlaces != nil {
			places = *cur.DecimalPlaces
		}
		out = append(out, model.Currency{
			Name:           cur.Name,
			Plural:         cur.Plural,
			Symbol:         cur.Symbol,
			SymbolAsPrefix: cur.SymbolAsPrefix,
			Value:          cur.Value,
			DecimalPlaces:  places,
		})
	}
	return out
}

// ModelTiers converts the tiers section, filling unset weights with defaults.
func (c *Config) ModelTiers() []model.MultiplierTier {
	out := make([]model.MultiplierTier, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		out = append(out, model.MultiplierTier{
			Name:          t.Name,
			Priority:      t.Priority,
			Currency:      t.Currency,
			RewardsPerDay: t.RewardsPerDay,
			Base:          weight(t.Base, DefaultBase),
			Weekend:       weight(t.Weekend, DefaultWeekend),
			Birthday:      weight(t.Birthday, DefaultBirthday),
			Video:         weight(t.Video, DefaultVideo),
			Streaming:     weight(t.Streaming, DefaultStreaming),
			Muted:         weight(t.Muted, DefaultMuted),
			Deafened:      weight(t.Deafened, DefaultDeafened),
			Group:         weight(t.Group, DefaultGroup),
			GroupMax:      weight(t.GroupMax, DefaultGroupMax),
		})
	}
	return out
}

// HolidaySet converts the controller's holiday rules.
func (c *Config) HolidaySet() (holiday.Set, error) {
	var set holiday.Set
	for _, h := range c.Controller.FixedHolidays {
		set.Fixed = append(set.Fixed, holiday.Fixed{
			Name: h.Name, Month: time.Month(h.Month), Day: h.Day, Tier: h.Tier,
		})
	}
	for _, h := range c.Controller.WeekdayHolidays {
		wd, err := parseWeekday(h.Weekday)
		if err != nil {
			return holiday.Set{}, fmt.Errorf("holiday %s: %w", h.Name, err)
		}
		set.Weekdays = append(set.Weekdays, holiday.Weekday{
			Name: h.Name, Month: time.Month(h.Month), Week: h.Week, Day: wd, Tier: h.Tier,
		})
	}
	return set, nil
}

// Debug reports whether verbose logging is enabled.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// weight converts a configured float to a decimal using its shortest
// representation, so 0.04 is exactly 4/100.
func weight(v *float64, def float64) decimal.Decimal {
	if v == nil {
		return decimal.NewFromFloat(def)
	}
	return decimal.NewFromFloat(*v)
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(s, d.String()) || strings.EqualFold(s, d.String()[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
