// Package antispam flags senders who post too fast or repeat themselves, and
// tracks a per-sender warning level that rises on each flag and decays over
// time.
package antispam

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

type Config struct {
	HistorySize         int           // messages kept per sender
	SimilarityThreshold float64       // 0-1, repeat when similarity >= threshold
	MinContentLength    int           // shorter normalized texts skip the repeat check
	FloodWindow         time.Duration // flood check window
	FloodMaxCount       int           // messages allowed inside the window
	DecayPeriod         time.Duration // one warning level lost per period
	RecordRetention     time.Duration // history entries older than this are dropped
}

func DefaultConfig() Config {
	return Config{
		HistorySize:         10,
		SimilarityThreshold: 0.8,
		MinContentLength:    3,
		FloodWindow:         5 * time.Second,
		FloodMaxCount:       4,
		DecayPeriod:         30 * time.Minute,
		RecordRetention:     10 * time.Minute,
	}
}

type Reason string

const (
	ReasonFlood  Reason = "rate too high"
	ReasonRepeat Reason = "repeated content"
)

// Verdict is the outcome of one Detect call.
type Verdict struct {
	Spam       bool
	Level      int
	Reason     Reason
	Similarity float64 // set for ReasonRepeat
}

func (v Verdict) String() string {
	switch {
	case !v.Spam:
		return "ok"
	case v.Reason == ReasonRepeat:
		return fmt.Sprintf("%s (similarity: %.0f%%)", v.Reason, v.Similarity*100)
	default:
		return string(v.Reason)
	}
}

type record struct {
	content string
	at      time.Time
}

type senderState struct {
	mu      sync.Mutex
	history []record // oldest first
	level   int
	decayAt time.Time // next decay step, zero while level is 0
	removed bool
}

// Detector keeps per-sender state. Detect is safe for concurrent use and
// runs concurrently with Sweep.
type Detector struct {
	cfg     Config
	now     func() time.Time
	senders *xsync.MapOf[int64, *senderState]
}

type Option func(*Detector)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

func New(cfg Config, opts ...Option) *Detector {
	def := DefaultConfig()
	if cfg.HistorySize < 1 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.FloodMaxCount < 1 {
		cfg.FloodMaxCount = def.FloodMaxCount
	}
	// the flood check counts retained history only
	cfg.HistorySize = max(cfg.HistorySize, cfg.FloodMaxCount)
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.FloodWindow <= 0 {
		cfg.FloodWindow = def.FloodWindow
	}
	if cfg.DecayPeriod <= 0 {
		cfg.DecayPeriod = def.DecayPeriod
	}
	if cfg.RecordRetention <= 0 {
		cfg.RecordRetention = def.RecordRetention
	}

	d := &Detector{
		cfg:     cfg,
		now:     time.Now,
		senders: xsync.NewMapOf[int64, *senderState](),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// acquire returns the locked live state of a sender, creating it if needed.
func (d *Detector) acquire(sender int64) *senderState {
	for {
		s, _ := d.senders.LoadOrCompute(sender, func() *senderState { return &senderState{} })
		s.mu.Lock()
		if !s.removed {
			return s
		}
		s.mu.Unlock()
	}
}

// Detect checks one message from sender. The message is recorded exactly once,
// after the checks, whatever the verdict.
func (d *Detector) Detect(sender int64, text string) Verdict {
	content := Normalize(text)
	now := d.now()

	s := d.acquire(sender)
	defer s.mu.Unlock()

	v := d.check(s, content, now)
	if v.Spam {
		if s.level == 0 {
			s.decayAt = now.Add(d.cfg.DecayPeriod)
		}
		s.level++
		v.Level = s.level
	}

	s.history = append(s.history, record{content: content, at: now})
	if over := len(s.history) - d.cfg.HistorySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
	return v
}

func (d *Detector) check(s *senderState, content string, now time.Time) Verdict {
	recent := 0
	for _, r := range s.history {
		if now.Sub(r.at) < d.cfg.FloodWindow {
			recent++
		}
	}
	if recent >= d.cfg.FloodMaxCount {
		return Verdict{Spam: true, Reason: ReasonFlood}
	}

	if utf8.RuneCountInString(content) < d.cfg.MinContentLength {
		return Verdict{}
	}
	for i := len(s.history) - 1; i >= 0; i-- {
		if sim := similarity(content, s.history[i].content); sim >= d.cfg.SimilarityThreshold {
			return Verdict{Spam: true, Reason: ReasonRepeat, Similarity: sim}
		}
	}
	return Verdict{}
}

// similarity is 1 - levenshtein/maxLen over runes.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// Level returns the current warning level of sender.
func (d *Detector) Level(sender int64) int {
	s, ok := d.senders.Load(sender)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Pardon resets the warning level of sender and reports the previous value.
func (d *Detector) Pardon(sender int64) int {
	s, ok := d.senders.Load(sender)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.level
	s.level = 0
	s.decayAt = time.Time{}
	return prev
}

// Tracked returns the number of senders with live state.
func (d *Detector) Tracked() int {
	return d.senders.Size()
}

// SweepStats summarizes one Sweep.
type SweepStats struct {
	Decayed int // warning levels lowered
	Expired int // history entries dropped
	Removed int // senders forgotten
}

// Sweep applies due decay steps, drops expired history and forgets senders
// with neither history nor warning level.
func (d *Detector) Sweep(now time.Time) SweepStats {
	var st SweepStats
	cutoff := now.Add(-d.cfg.RecordRetention)

	d.senders.Range(func(id int64, s *senderState) bool {
		s.mu.Lock()
		defer s.mu.Unlock()

		for s.level > 0 && !now.Before(s.decayAt) {
			s.level--
			s.decayAt = s.decayAt.Add(d.cfg.DecayPeriod)
			st.Decayed++
		}
		if s.level == 0 {
			s.decayAt = time.Time{}
		}

		expired := 0
		for expired < len(s.history) && s.history[expired].at.Before(cutoff) {
			expired++
		}
		if expired > 0 {
			st.Expired += expired
			s.history = append(s.history[:0], s.history[expired:]...)
		}

		if len(s.history) == 0 && s.level == 0 {
			s.removed = true
			d.senders.Delete(id)
			st.Removed++
		}
		return true
	})
	return st
}

// Run sweeps every interval until ctx is done.
func (d *Detector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := d.Sweep(d.now())
			if st.Decayed+st.Removed > 0 {
				log.Debug().
					Int("decayed", st.Decayed).
					Int("expired", st.Expired).
					Int("removed", st.Removed).
					Int("tracked", d.Tracked()).
					Msg("anti-spam sweep")
			}
		}
	}
}
