package usage

import (
	"sync"
	"testing"
	"time"
)

func TestTracker_Totals(t *testing.T) {
	tr := New()
	tr.Add(Record{Stage: StageMap, Chunk: 0, Attempt: 1, Outcome: OutcomeRetry, Error: "rate limited"})
	tr.Add(Record{Stage: StageMap, Chunk: 0, Attempt: 2, Outcome: OutcomeSuccess, PromptTokens: 100, CompletionTokens: 20})
	tr.Add(Record{Stage: StageMap, Chunk: 1, Attempt: 1, Outcome: OutcomeSuccess, PromptTokens: 90, CompletionTokens: 10})
	tr.Add(Record{Stage: StageReduce, Chunk: -1, Attempt: 1, Outcome: OutcomeFailure, Error: "bad request"})

	got := tr.Totals()
	want := Totals{Calls: 4, Successes: 2, RetriedSuccesses: 1, Retries: 1, Failures: 1, PromptTokens: 190, CompletionTokens: 30}
	if got != want {
		t.Errorf("totals = %+v, want %+v", got, want)
	}
	if got.TotalTokens() != 220 {
		t.Errorf("expected 220 total tokens, got %d", got.TotalTokens())
	}

	snap := tr.Snapshot()
	if snap.ByStage[StageMap].Successes != 2 {
		t.Errorf("expected 2 map successes, got %d", snap.ByStage[StageMap].Successes)
	}
	if snap.ByStage[StageReduce].Failures != 1 {
		t.Errorf("expected 1 reduce failure, got %d", snap.ByStage[StageReduce].Failures)
	}
	if len(snap.Records) != 4 {
		t.Errorf("expected 4 records, got %d", len(snap.Records))
	}
}

func TestTracker_RecordsAreCopies(t *testing.T) {
	tr := New()
	tr.Add(Record{Stage: StageSingle, Outcome: OutcomeSuccess})
	recs := tr.Records()
	recs[0].Stage = StageRepair
	if tr.Records()[0].Stage != StageSingle {
		t.Error("expected tracker state to be unaffected by caller mutation")
	}
}

func TestTracker_ChildForwardsToParent(t *testing.T) {
	agg := NewAggregate(time.Hour)
	a := agg.Child()
	b := agg.Child()

	a.Add(Record{Stage: StageMap, Attempt: 1, Outcome: OutcomeSuccess, PromptTokens: 5})
	b.Add(Record{Stage: StageMap, Attempt: 1, Outcome: OutcomeSuccess, PromptTokens: 7})

	if a.Totals().PromptTokens != 5 || b.Totals().PromptTokens != 7 {
		t.Errorf("expected children to keep their own totals, got %d and %d", a.Totals().PromptTokens, b.Totals().PromptTokens)
	}
	if agg.Totals().PromptTokens != 12 || agg.Totals().Successes != 2 {
		t.Errorf("expected aggregate totals to sum children, got %+v", agg.Totals())
	}
	if len(agg.Snapshot().Records) != 0 {
		t.Error("expected aggregate to keep no individual records")
	}
}

func TestTracker_ConcurrentAppendNoLostUpdates(t *testing.T) {
	agg := NewAggregate(time.Hour)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run := agg.Child()
			for range 250 {
				run.Add(Record{Stage: StageMap, Attempt: 1, Outcome: OutcomeSuccess, PromptTokens: 1, Duration: time.Millisecond})
			}
		}()
	}
	wg.Wait()

	got := agg.Totals()
	if got.Calls != 2000 || got.PromptTokens != 2000 {
		t.Errorf("expected 2000 calls and tokens, got %+v", got)
	}
	if n := agg.Snapshot().Latency.Count; n != 2000 {
		t.Errorf("expected 2000 latency samples, got %d", n)
	}
}

func TestTracker_LatencyOnlyForSuccesses(t *testing.T) {
	tr := New()
	tr.Add(Record{Outcome: OutcomeRetry, Duration: time.Second})
	tr.Add(Record{Outcome: OutcomeSuccess, Duration: 250 * time.Millisecond})
	lat := tr.Snapshot().Latency
	if lat.Count != 1 || lat.MaxMs != 250 {
		t.Errorf("expected one 250ms sample, got %+v", lat)
	}
}
