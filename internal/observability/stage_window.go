package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Stage is one step of an analysis turn.
type Stage string

const (
	StageContext Stage = "context"
	StageDetect  Stage = "detect"
	StageReply   Stage = "reply"
	StagePersist Stage = "persist"
	StageTotal   Stage = "analysis_total"
)

// stageBudgets lists the tracked stages in report order. Budgets assume a
// hosted chat-completion endpoint answering in about a second; detection runs
// two calls concurrently, so it shares one call's budget.
var stageBudgets = []struct {
	stage  Stage
	budget time.Duration
}{
	{StageContext, 5 * time.Millisecond},
	{StageDetect, 1500 * time.Millisecond},
	{StageReply, 2500 * time.Millisecond},
	{StagePersist, 50 * time.Millisecond},
	{StageTotal, 4500 * time.Millisecond},
}

// StageReport is the latency picture of one stage over the recent window.
type StageReport struct {
	Stage    Stage   `json:"stage"`
	Samples  int     `json:"samples"`
	LastMS   float64 `json:"last_ms"`
	P50MS    float64 `json:"p50_ms"`
	P95MS    float64 `json:"p95_ms"`
	BudgetMS float64 `json:"budget_ms"`
	// OverBudget counts windowed samples slower than the budget.
	OverBudget int  `json:"over_budget"`
	Healthy    bool `json:"healthy"`
}

type StageSnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Window      int            `json:"window"`
	Stages      []StageReport  `json:"stages"`
	Fallbacks   map[string]int `json:"fallbacks,omitempty"`
}

// stageTracker keeps the last window durations of every budgeted stage and a
// running count of fallbacks by kind. Unbudgeted stages are ignored.
type stageTracker struct {
	mu        sync.Mutex
	window    int
	samples   map[Stage][]time.Duration
	fallbacks map[string]int
}

func newStageTracker(window int) *stageTracker {
	if window <= 0 {
		window = 256
	}
	t := &stageTracker{
		window:    window,
		samples:   make(map[Stage][]time.Duration, len(stageBudgets)),
		fallbacks: make(map[string]int),
	}
	for _, b := range stageBudgets {
		t.samples[b.stage] = make([]time.Duration, 0, window)
	}
	return t
}

func (t *stageTracker) observe(stage Stage, d time.Duration) {
	if d < 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.samples[stage]
	if !ok {
		return
	}
	if len(s) == t.window {
		copy(s, s[1:])
		s = s[:t.window-1]
	}
	t.samples[stage] = append(s, d)
}

func (t *stageTracker) fallback(kind string) {
	if kind == "" {
		return
	}
	t.mu.Lock()
	t.fallbacks[kind]++
	t.mu.Unlock()
}

func (t *stageTracker) snapshot() StageSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		Window:      t.window,
		Stages:      make([]StageReport, 0, len(stageBudgets)),
	}
	for _, b := range stageBudgets {
		s := t.samples[b.stage]
		if len(s) == 0 {
			continue
		}
		sorted := slices.Clone(s)
		slices.Sort(sorted)
		over := len(sorted) - sortedIndexAbove(sorted, b.budget)
		p95 := nearestRank(sorted, 0.95)
		snap.Stages = append(snap.Stages, StageReport{
			Stage:      b.stage,
			Samples:    len(s),
			LastMS:     ms(s[len(s)-1]),
			P50MS:      ms(nearestRank(sorted, 0.50)),
			P95MS:      ms(p95),
			BudgetMS:   ms(b.budget),
			OverBudget: over,
			Healthy:    p95 <= b.budget,
		})
	}
	if len(t.fallbacks) > 0 {
		snap.Fallbacks = make(map[string]int, len(t.fallbacks))
		for k, v := range t.fallbacks {
			snap.Fallbacks[k] = v
		}
	}
	return snap
}

// nearestRank returns the smallest sample covering fraction q of sorted.
func nearestRank(sorted []time.Duration, q float64) time.Duration {
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

// sortedIndexAbove returns the index of the first sample strictly above limit.
func sortedIndexAbove(sorted []time.Duration, limit time.Duration) int {
	i, found := slices.BinarySearch(sorted, limit)
	for found && i < len(sorted) && sorted[i] == limit {
		i++
	}
	return i
}

func ms(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}
