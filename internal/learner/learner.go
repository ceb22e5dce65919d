// Package learner tracks per-market outcomes and places chronically losing
// markets under temporary avoidance. Once enough winning history exists it
// also derives suggested strategy parameters from the empirical
// distribution of winning trades.
package learner

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/polyedge/internal/ttlcache"
)

// Config tunes avoidance and suggestion behavior.
type Config struct {
	MaxConsecutiveLosses int
	AvoidDuration        time.Duration
	MinTradesForSuggest  int
}

// Conservative defaults returned before enough winning history exists.
const (
	defaultMinEdgeBps   = 400.0
	defaultMaxSpreadBps = 300.0
)

// SuggestedParams are strategy parameters derived from winning trades.
type SuggestedParams struct {
	MinEdgeBps       float64
	MaxSpreadBps     float64
	FavorableHours   []int
	UnfavorableHours []int
	FromHistory      bool
}

// winSample is what a winning trade contributes to the suggestion model.
type winSample struct {
	EdgeBps   float64 `json:"edge_bps"`
	SpreadBps float64 `json:"spread_bps"`
	HourUTC   int     `json:"hour_utc"`
}

// Learner tracks consecutive losses per market. Safe for concurrent use.
type Learner struct {
	cfg Config

	mu         sync.Mutex
	lossStreak map[string]int
	avoided    *ttlcache.Cache[string, string]
	wins       []winSample
	hourTotals map[int]int // trades per UTC hour, wins and losses
	hourWins   map[int]int
}

// New creates a Learner.
func New(cfg Config) *Learner {
	if cfg.MaxConsecutiveLosses <= 0 {
		cfg.MaxConsecutiveLosses = 3
	}
	if cfg.AvoidDuration <= 0 {
		cfg.AvoidDuration = time.Hour
	}
	if cfg.MinTradesForSuggest <= 0 {
		cfg.MinTradesForSuggest = 20
	}
	return &Learner{
		cfg:        cfg,
		lossStreak: make(map[string]int),
		avoided:    ttlcache.New[string, string](),
		hourTotals: make(map[int]int),
		hourWins:   make(map[int]int),
	}
}

// RecordOutcome folds one closed trade into the model. Wins reset the
// market's loss streak; a streak reaching the ceiling places the market
// under avoidance for the configured duration.
func (l *Learner) RecordOutcome(marketID string, win bool, edgeBps, spreadBps float64, closedAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hour := closedAt.UTC().Hour()
	l.hourTotals[hour]++

	if win {
		l.lossStreak[marketID] = 0
		l.hourWins[hour]++
		l.wins = append(l.wins, winSample{EdgeBps: edgeBps, SpreadBps: spreadBps, HourUTC: hour})
		return
	}

	l.lossStreak[marketID]++
	if l.lossStreak[marketID] >= l.cfg.MaxConsecutiveLosses {
		reason := fmt.Sprintf("%d consecutive losses", l.lossStreak[marketID])
		l.avoided.Set(marketID, reason, l.cfg.AvoidDuration, closedAt)
	}
}

// Avoided reports whether the market is currently under avoidance.
func (l *Learner) Avoided(marketID string, now time.Time) (bool, string) {
	reason, ok := l.avoided.Get(marketID, now)
	return ok, reason
}

// Prune drops expired avoidance entries.
func (l *Learner) Prune(now time.Time) {
	l.avoided.Prune(now)
}

// Suggest derives parameters from winning history, or returns conservative
// defaults while history is thin.
func (l *Learner) Suggest() SuggestedParams {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.wins) < l.cfg.MinTradesForSuggest {
		return SuggestedParams{MinEdgeBps: defaultMinEdgeBps, MaxSpreadBps: defaultMaxSpreadBps}
	}

	edges := make([]float64, len(l.wins))
	spreads := make([]float64, len(l.wins))
	for i, w := range l.wins {
		edges[i] = w.EdgeBps
		spreads[i] = w.SpreadBps
	}
	sort.Float64s(edges)
	sort.Float64s(spreads)

	var favorable, unfavorable []int
	for hour, total := range l.hourTotals {
		if total < 3 {
			continue // not enough samples to judge the hour
		}
		rate := float64(l.hourWins[hour]) / float64(total)
		if rate >= 0.55 {
			favorable = append(favorable, hour)
		} else if rate <= 0.45 {
			unfavorable = append(unfavorable, hour)
		}
	}
	sort.Ints(favorable)
	sort.Ints(unfavorable)

	return SuggestedParams{
		// Winning trades cluster above these: take the 25th percentile of
		// winning edges and the 75th of winning spreads.
		MinEdgeBps:       percentile(edges, 0.25),
		MaxSpreadBps:     percentile(spreads, 0.75),
		FavorableHours:   favorable,
		UnfavorableHours: unfavorable,
		FromHistory:      true,
	}
}

// state is the exported persistence form.
type state struct {
	LossStreak map[string]int `json:"loss_streak"`
	Wins       []winSample    `json:"wins"`
	HourTotals map[int]int    `json:"hour_totals"`
	HourWins   map[int]int    `json:"hour_wins"`
}

// Export serializes the learner model. Avoidance entries are deliberately
// not exported: they are short-lived and recomputed from fresh losses.
func (l *Learner) Export() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return json.Marshal(state{
		LossStreak: l.lossStreak,
		Wins:       l.wins,
		HourTotals: l.hourTotals,
		HourWins:   l.hourWins,
	})
}

// Import restores previously exported state.
func (l *Learner) Import(data []byte) error {
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("learner.Import: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if st.LossStreak != nil {
		l.lossStreak = st.LossStreak
	}
	l.wins = st.Wins
	if st.HourTotals != nil {
		l.hourTotals = st.HourTotals
	}
	if st.HourWins != nil {
		l.hourWins = st.HourWins
	}
	return nil
}

// percentile returns the p-th percentile of sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
