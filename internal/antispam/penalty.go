package antispam

import (
	"math"
	"time"
)

// MaxMute is the longest mute the chat platform accepts.
const MaxMute = 30 * 24 * time.Hour

// Penalty maps a warning level to a mute duration: base * multiplier^(level-1),
// capped at Cap.
type Penalty struct {
	Base       time.Duration
	Multiplier float64
	Cap        time.Duration
}

// DefaultPenalty mutes for one minute and doubles per level.
func DefaultPenalty() Penalty {
	return Penalty{Base: time.Minute, Multiplier: 2, Cap: MaxMute}
}

// MuteDuration returns the mute for level. Levels below 1 mute for zero.
func (p Penalty) MuteDuration(level int) time.Duration {
	if level < 1 || p.Base <= 0 {
		return 0
	}
	limit := p.Cap
	if limit <= 0 || limit > MaxMute {
		limit = MaxMute
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(p.Base) * math.Pow(mult, float64(level-1))
	if math.IsInf(d, 0) || math.IsNaN(d) || d >= float64(limit) {
		return limit
	}
	return time.Duration(d)
}
