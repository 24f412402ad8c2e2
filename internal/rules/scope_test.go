package rules

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

type mockFetcher struct {
	events  []*Event
	err     error
	queries []EventQuery
}

func (m *mockFetcher) ListEvents(_ context.Context, q EventQuery) ([]*Event, error) {
	m.queries = append(m.queries, q)
	if m.err != nil {
		return nil, m.err
	}
	var out []*Event
	for _, ev := range m.events {
		if ev.ProgramStage != q.ProgramStage {
			continue
		}
		if q.DueBefore != "" && ev.DueDate > q.DueBefore {
			continue
		}
		out = append(out, ev)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

var crossEventDecls = []VariableDecl{
	{Name: "prev", Source: SourceDataElementPrevious, DataElement: "de1"},
}

func TestScopeLoader_TrivialWithoutCrossEventVariables(t *testing.T) {
	fetcher := &mockFetcher{}
	loader := NewScopeLoader(fetcher, 10, zerolog.Nop())

	current := testEvent("ev1", "stage1", "2020-06-10", nil)
	scope := loader.Load(context.Background(), LoadInput{
		Event: current,
		Declarations: []VariableDecl{
			{Name: "w", Source: SourceDataElementCurrentEvent, DataElement: "de1"},
		},
	})

	if len(fetcher.queries) != 0 {
		t.Error("loader fetched events for a current-event-only program")
	}
	if len(scope.All) != 1 || scope.All[0] != current {
		t.Errorf("trivial scope All = %v, want just the current event", scope.All)
	}
}

func TestScopeLoader_WindowMergeAndSort(t *testing.T) {
	older := testEvent("ev0", "stage1", "2020-01-01", nil)
	newer := testEvent("ev2", "stage1", "2020-08-01", nil)
	current := testEvent("ev1", "stage1", "2020-06-10", nil)
	// The repository also returns a stale copy of the current event; the
	// executing copy must win.
	stale := testEvent("ev1", "stage1", "2020-06-09", map[string]string{"de1": "stale"})

	fetcher := &mockFetcher{events: []*Event{older, newer, stale}}
	loader := NewScopeLoader(fetcher, 10, zerolog.Nop())

	scope := loader.Load(context.Background(), LoadInput{
		Event:        current,
		OrgUnit:      "ou1",
		Declarations: crossEventDecls,
	})

	if len(scope.All) != 3 {
		t.Fatalf("merged scope has %d events, want 3 (deduplicated)", len(scope.All))
	}
	for i := 1; i < len(scope.All); i++ {
		if scope.All[i-1].EventDate > scope.All[i].EventDate {
			t.Errorf("events not sorted ascending: %v", scope.All)
		}
	}
	for _, ev := range scope.All {
		if ev.UID == "ev1" && ev != current {
			t.Error("stale repository copy of the executing event won the merge")
		}
	}
	if len(scope.ByStage["stage1"]) != 3 {
		t.Errorf("ByStage[stage1] has %d events, want 3", len(scope.ByStage["stage1"]))
	}
}

func TestScopeLoader_CachesPerEventIdentity(t *testing.T) {
	fetcher := &mockFetcher{}
	loader := NewScopeLoader(fetcher, 10, zerolog.Nop())

	current := testEvent("ev1", "stage1", "2020-06-10", nil)
	in := LoadInput{Event: current, Declarations: crossEventDecls}

	loader.Load(context.Background(), in)
	first := len(fetcher.queries)
	loader.Load(context.Background(), in)
	if len(fetcher.queries) != first {
		t.Errorf("second pass on unchanged event fetched again: %d -> %d queries", first, len(fetcher.queries))
	}

	// A different event date invalidates the cache.
	current.EventDate = "2020-06-11"
	loader.Load(context.Background(), in)
	if len(fetcher.queries) == first {
		t.Error("changed event date did not invalidate the cached window")
	}
}

func TestScopeLoader_InvalidateForcesRefetch(t *testing.T) {
	fetcher := &mockFetcher{}
	loader := NewScopeLoader(fetcher, 10, zerolog.Nop())

	current := testEvent("ev1", "stage1", "2020-06-10", nil)
	in := LoadInput{Event: current, Declarations: crossEventDecls}

	loader.Load(context.Background(), in)
	first := len(fetcher.queries)

	loader.Invalidate()
	loader.Load(context.Background(), in)
	if len(fetcher.queries) == first {
		t.Error("load after Invalidate reused the cached window")
	}
}

func TestScopeLoader_DegradesOnFetchFailure(t *testing.T) {
	fetcher := &mockFetcher{err: fmt.Errorf("network unreachable")}
	loader := NewScopeLoader(fetcher, 10, zerolog.Nop())

	current := testEvent("ev1", "stage1", "2020-06-10", nil)
	scope := loader.Load(context.Background(), LoadInput{Event: current, Declarations: crossEventDecls})

	if scope == nil || len(scope.All) != 1 || scope.All[0] != current {
		t.Errorf("failed fetch did not degrade to current-event scope: %+v", scope)
	}
}

func TestScopeLoader_WindowLimit(t *testing.T) {
	fetcher := &mockFetcher{}
	loader := NewScopeLoader(fetcher, 5, zerolog.Nop())

	current := testEvent("ev1", "stage1", "2020-06-10", nil)
	loader.Load(context.Background(), LoadInput{Event: current, Declarations: crossEventDecls})

	for _, q := range fetcher.queries {
		if q.Limit != 5 {
			t.Errorf("query limit = %d, want 5", q.Limit)
		}
	}
}
