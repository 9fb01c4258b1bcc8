package usage

import (
	"sync"
	"time"
)

// Stage names the kind of model call a record belongs to.
type Stage string

const (
	StageSingle Stage = "single"
	StageMap    Stage = "map"
	StageReduce Stage = "reduce"
	StageRepair Stage = "repair"
)

// Outcome is the disposition of one attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRetry   Outcome = "retry"   // Transient failure; another attempt follows.
	OutcomeFailure Outcome = "failure" // Final failed attempt.
)

// Record describes one model call attempt.
type Record struct {
	DocumentID       string        `json:"document_id"`
	Chunk            int           `json:"chunk"`
	Stage            Stage         `json:"stage"`
	Attempt          int           `json:"attempt"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	Duration         time.Duration `json:"duration_ns"`
	Outcome          Outcome       `json:"outcome"`
	Error            string        `json:"error,omitempty"`
	At               time.Time     `json:"at"`
}

// Totals are running counters over all recorded attempts.
type Totals struct {
	Calls            int `json:"calls"`
	Successes        int `json:"successes"`
	RetriedSuccesses int `json:"retried_successes"`
	Retries          int `json:"retries"`
	Failures         int `json:"failures"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// TotalTokens is prompt plus completion tokens.
func (t Totals) TotalTokens() int {
	return t.PromptTokens + t.CompletionTokens
}

func (t *Totals) add(r Record) {
	t.Calls++
	t.PromptTokens += r.PromptTokens
	t.CompletionTokens += r.CompletionTokens
	switch r.Outcome {
	case OutcomeSuccess:
		t.Successes++
		if r.Attempt > 1 {
			t.RetriedSuccesses++
		}
	case OutcomeRetry:
		t.Retries++
	case OutcomeFailure:
		t.Failures++
	}
}

// Snapshot is an immutable copy of a tracker's state.
type Snapshot struct {
	Totals  Totals           `json:"totals"`
	ByStage map[Stage]Totals `json:"by_stage"`
	Latency LatencyStats     `json:"latency"`
	Records []Record         `json:"records,omitempty"`
}

// Tracker accumulates usage records. It is safe for concurrent use.
type Tracker struct {
	mu          sync.Mutex
	keepRecords bool
	records     []Record
	totals      Totals
	byStage     map[Stage]Totals
	latency     *latencyWindow
	parent      *Tracker
}

// New returns a tracker that keeps every record, for a single run.
func New() *Tracker {
	return &Tracker{
		keepRecords: true,
		byStage:     map[Stage]Totals{},
		latency:     newLatencyWindow(0),
	}
}

// NewAggregate returns a process-wide tracker. It keeps totals for its whole
// lifetime and latency samples younger than window, but not individual records.
func NewAggregate(window time.Duration) *Tracker {
	if window <= 0 {
		window = time.Hour
	}
	return &Tracker{
		byStage: map[Stage]Totals{},
		latency: newLatencyWindow(window),
	}
}

// Child returns a per-run tracker whose records are also added to t.
func (t *Tracker) Child() *Tracker {
	c := New()
	c.parent = t
	return c
}

// Add appends a record.
func (t *Tracker) Add(r Record) {
	if r.At.IsZero() {
		r.At = time.Now()
	}

	t.mu.Lock()
	if t.keepRecords {
		t.records = append(t.records, r)
	}
	t.totals.add(r)
	st := t.byStage[r.Stage]
	st.add(r)
	t.byStage[r.Stage] = st
	t.mu.Unlock()

	if r.Outcome == OutcomeSuccess {
		t.latency.add(r.Duration)
	}
	if t.parent != nil {
		t.parent.Add(r)
	}
}

// Totals returns the running counters.
func (t *Tracker) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

// Records returns a copy of the kept records in append order.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Snapshot returns a copy of everything the tracker knows.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	snap := Snapshot{
		Totals:  t.totals,
		ByStage: make(map[Stage]Totals, len(t.byStage)),
	}
	for k, v := range t.byStage {
		snap.ByStage[k] = v
	}
	if t.keepRecords {
		snap.Records = make([]Record, len(t.records))
		copy(snap.Records, t.records)
	}
	t.mu.Unlock()

	snap.Latency = t.latency.stats()
	return snap
}
