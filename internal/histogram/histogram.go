// Package histogram implements the counted multiset of reward multipliers
// that occupy a member's reward slots.
//
// Multipliers are stored as fixed-point integers (value × 10^Places) so that
// two multipliers computed at different times compare equal exactly when
// they round to the same value.
package histogram

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Histogram maps a fixed-point multiplier key to the number of slots it holds.
type Histogram struct {
	Places int32            `json:"places"`
	Counts map[int64]uint32 `json:"counts"`
}

// Entry is one key of the histogram resolved back to a decimal.
type Entry struct {
	Multiplier decimal.Decimal
	Count      uint32
}

// New returns an empty histogram keyed at the given decimal precision.
func New(places int32) Histogram {
	return Histogram{Places: places, Counts: make(map[int64]uint32)}
}

// Key converts a multiplier to its fixed-point key, rounding first.
func (h Histogram) Key(d decimal.Decimal) int64 {
	return d.Round(h.Places).Shift(h.Places).IntPart()
}

// Value converts a fixed-point key back to a decimal multiplier.
func (h Histogram) Value(key int64) decimal.Decimal {
	return decimal.New(key, -h.Places)
}

// Add inserts one occurrence of d.
func (h *Histogram) Add(d decimal.Decimal) {
	h.ensure()
	h.Counts[h.Key(d)]++
}

// Remove deletes one occurrence of d. It reports false when d is not present.
func (h *Histogram) Remove(d decimal.Decimal) bool {
	key := h.Key(d)
	n, ok := h.Counts[key]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(h.Counts, key)
	} else {
		h.Counts[key] = n - 1
	}
	return true
}

// Worst returns the smallest multiplier currently held.
// ok is false when the histogram is empty.
func (h Histogram) Worst() (decimal.Decimal, bool) {
	var (
		min   int64
		found bool
	)
	for k := range h.Counts {
		if !found || k < min {
			min, found = k, true
		}
	}
	if !found {
		return decimal.Zero, false
	}
	return h.Value(min), true
}

// Best returns the largest multiplier currently held.
func (h Histogram) Best() (decimal.Decimal, bool) {
	var (
		max   int64
		found bool
	)
	for k := range h.Counts {
		if !found || k > max {
			max, found = k, true
		}
	}
	if !found {
		return decimal.Zero, false
	}
	return h.Value(max), true
}

// Total returns the number of occupied slots.
func (h Histogram) Total() int {
	total := 0
	for _, n := range h.Counts {
		total += int(n)
	}
	return total
}

// Len returns the number of distinct multipliers.
func (h Histogram) Len() int { return len(h.Counts) }

// Count returns how many slots hold d.
func (h Histogram) Count(d decimal.Decimal) uint32 {
	return h.Counts[h.Key(d)]
}

// Merge adds every count of other into h. Keys are rescaled when the two
// histograms use different precisions.
func (h *Histogram) Merge(other Histogram) {
	h.ensure()
	for k, n := range other.Counts {
		if other.Places == h.Places {
			h.Counts[k] += n
			continue
		}
		h.Counts[h.Key(other.Value(k))] += n
	}
}

// Clone returns a deep copy.
func (h Histogram) Clone() Histogram {
	c := Histogram{Places: h.Places, Counts: make(map[int64]uint32, len(h.Counts))}
	for k, n := range h.Counts {
		c.Counts[k] = n
	}
	return c
}

// Entries lists the histogram in ascending multiplier order.
func (h Histogram) Entries() []Entry {
	keys := make([]int64, 0, len(h.Counts))
	for k := range h.Counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = Entry{Multiplier: h.Value(k), Count: h.Counts[k]}
	}
	return out
}

func (h *Histogram) ensure() {
	if h.Counts == nil {
		h.Counts = make(map[int64]uint32)
	}
}
